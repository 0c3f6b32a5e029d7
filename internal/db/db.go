// Package db locates and opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dataDirName        = ".fieldline"
	fileName           = "fieldline.db"
	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace   string
	BusyTimeout time.Duration
}

// DataDir returns the directory holding the database and stored photos.
func DataDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dataDirName)
}

// EnsureWorkspace creates the data directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := DataDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens the database with foreign keys and WAL on. The pool holds one
// connection: identifier allocation and the insert using it must not
// interleave with another writer.
func Open(cfg Config) (*sql.DB, error) {
	dir, err := EnsureWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	pragmas := []string{
		"foreign_keys(1)",
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
	}
	dsn := "file:" + filepath.Join(dir, fileName) + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
