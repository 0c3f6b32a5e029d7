// Package ident allocates human-readable prefixed identifiers (T001, DM012)
// by scanning the current maximum of a table.
package ident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind describes one identifier family.
type Kind struct {
	Prefix string
	Table  string
}

var (
	Task            = Kind{Prefix: "T", Table: "tasks"}
	Phase           = Kind{Prefix: "P", Table: "phases"}
	Report          = Kind{Prefix: "R", Table: "reports"}
	MaterialRequest = Kind{Prefix: "DM", Table: "material_requests"}
	Notification    = Kind{Prefix: "N", Table: "notifications"}
	Material        = Kind{Prefix: "M", Table: "materials"}
)

const (
	DefaultWidth    = 3
	DefaultAttempts = 5
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Allocator struct {
	Width int
}

func (a Allocator) width() int {
	if a.Width <= 0 {
		return DefaultWidth
	}
	return a.Width
}

// Max returns the largest numeric suffix currently used by kind, 0 when the
// table is empty or missing.
func (a Allocator) Max(ctx context.Context, q Querier, k Kind) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(CAST(SUBSTR(id, ?) AS INTEGER)), 0) FROM %s WHERE id GLOB ?`, k.Table)
	var n int
	err := q.QueryRowContext(ctx, query, len(k.Prefix)+1, k.Prefix+"[0-9]*").Scan(&n)
	if err != nil {
		if IsMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan max %s id: %w", k.Prefix, err)
	}
	return n, nil
}

// Next returns the identifier following the current maximum. Callers run it
// on the transaction that inserts the row.
func (a Allocator) Next(ctx context.Context, q Querier, k Kind) (string, error) {
	n, err := a.Max(ctx, q, k)
	if err != nil {
		return "", err
	}
	return Format(k, n+1, a.width()), nil
}

// Format renders prefix + zero padded suffix.
func Format(k Kind, n, width int) string {
	return fmt.Sprintf("%s%0*d", k.Prefix, width, n)
}

// Retry runs fn until it succeeds, fails with something other than an
// identifier conflict, or attempts run out.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if err == nil || !IsConflict(err) {
			return err
		}
	}
	return fmt.Errorf("identifier allocation gave up after %d attempts: %w", attempts, err)
}

// IsConflict reports a primary key or unique constraint violation.
func IsConflict(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			msg := se.Error()
			return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
		}
	}
	return false
}

// IsMissingTable reports a query against a table that does not exist.
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
