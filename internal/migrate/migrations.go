// Package migrate applies the embedded schema to a workspace database.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// Step is one numbered schema file, e.g. 002_api_keys.sql.
type Step struct {
	Version int
	Name    string
	SQL     string
}

func steps() ([]Step, error) {
	names, err := files.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	out := make([]Step, 0, len(names))
	for _, entry := range names {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", name)
		}
		body, err := files.ReadFile("sql/" + name)
		if err != nil {
			return nil, err
		}
		out = append(out, Step{Version: v, Name: name, SQL: string(body)})
	}
	slices.SortFunc(out, func(a, b Step) int { return a.Version - b.Version })
	return out, nil
}

// Latest returns the highest embedded version.
func Latest() (int, error) {
	all, err := steps()
	if err != nil || len(all) == 0 {
		return 0, err
	}
	return all[len(all)-1].Version, nil
}

func Migrate(db *sql.DB) error {
	return MigrateContext(context.Background(), db)
}

// MigrateContext runs every step newer than the recorded version in one
// transaction; a failing step leaves the schema untouched.
func MigrateContext(ctx context.Context, db *sql.DB) error {
	all, err := steps()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("schema_version table: %w", err)
	}
	current, err := version(ctx, tx)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`)
	}
	if err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}
	for _, s := range all {
		if s.Version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
			return fmt.Errorf("apply %s: %w", s.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, s.Version); err != nil {
			return fmt.Errorf("record %s: %w", s.Name, err)
		}
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func version(ctx context.Context, q querier) (int, error) {
	var v int
	err := q.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	return v, err
}

// Version reports the recorded schema version, 0 for a fresh database.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	v, err := version(ctx, db)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
