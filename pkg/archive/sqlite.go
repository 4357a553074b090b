package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists test outcomes in a single local database file.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS latency_tests(node TEXT, url TEXT, delay_ms INTEGER, ok INTEGER, ts INTEGER); CREATE INDEX IF NOT EXISTS idx_latency_tests_node ON latency_tests(node, ts)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.Exec(`INSERT INTO latency_tests(node, url, delay_ms, ok, ts) VALUES(?,?,?,?,?)`,
		e.Node, e.URL, e.DelayMs, ok, e.Timestamp.UnixMilli())
	return err
}

func (s *SQLiteStore) Recent(node string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = memoryKeep
	}
	rows, err := s.db.Query(`SELECT node, url, delay_ms, ok, ts FROM latency_tests WHERE node = ? ORDER BY ts DESC LIMIT ?`, node, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ok int
		var ts int64
		if err := rows.Scan(&e.Node, &e.URL, &e.DelayMs, &ok, &ts); err != nil {
			return nil, err
		}
		e.OK = ok == 1
		e.Timestamp = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
