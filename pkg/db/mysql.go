package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proxy-fleet/pkg/model"
)

type mysqlConfig struct {
	host, port, user, pass, name string
}

func (c mysqlConfig) dsn() string {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		return v
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.user, c.pass, c.host, c.port, c.name)
}

// Init connects to MySQL and migrates the dashboard account table.
// Env:
//
//	MYSQL_DSN or MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASS, MYSQL_DB
func Init() (*gorm.DB, error) {
	_ = loadDotEnv()
	cfg := mysqlConfig{
		host: getenv("MYSQL_HOST", "127.0.0.1"),
		port: getenv("MYSQL_PORT", "3306"),
		user: getenv("MYSQL_USER", "root"),
		pass: getenv("MYSQL_PASS", ""),
		name: getenv("MYSQL_DB", "proxy_fleet"),
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return nil, fmt.Errorf("mysql migrate: %w", err)
	}
	return db, nil
}

func open(cfg mysqlConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(cfg.dsn()), gcfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			return nil, err
		}
		if cerr := ensureDatabase(cfg); cerr != nil {
			return nil, fmt.Errorf("create database: %w", cerr)
		}
		if db, err = gorm.Open(mysql.Open(cfg.dsn()), gcfg); err != nil {
			return nil, err
		}
	}
	sqlDB, _ := db.DB()
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	return db, nil
}

func ensureDatabase(cfg mysqlConfig) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/", cfg.user, cfg.pass, cfg.host, cfg.port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", cfg.name))
	return err
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
