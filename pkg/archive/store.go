package archive

import "time"

// Entry is one latency test outcome. A failed test records DelayMs = -1 with
// OK false.
type Entry struct {
	Node      string    `json:"node"`
	URL       string    `json:"url"`
	DelayMs   int       `json:"delayMs"`
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps an append-only record of latency test outcomes.
// Later this can grow aggregation queries; we start with recent-per-node.
type Store interface {
	Record(Entry) error
	Recent(node string, limit int) ([]Entry, error)
	Close() error
}
