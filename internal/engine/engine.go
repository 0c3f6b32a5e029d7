package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldline/internal/blob"
	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/ident"
	"fieldline/internal/repo"
)

const dateLayout = "2006-01-02"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Blobs  blob.Store
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, blobs blob.Store) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Blobs:  blobs,
		Logger: log.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() string {
	return e.now().UTC().Format(dateLayout)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) alloc() ident.Allocator {
	if e.Config == nil {
		return ident.Allocator{}
	}
	return ident.Allocator{Width: e.Config.Identifiers.Width}
}

func (e Engine) attempts() int {
	if e.Config == nil {
		return ident.DefaultAttempts
	}
	return e.Config.Identifiers.MaxAttempts
}

// ValidationError reports input rejected before any storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// NotificationError wraps a failure to persist a notification.
type NotificationError struct {
	Role domain.Role
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Role, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Outcome carries a result together with failures that did not undo it.
type Outcome[T any] struct {
	Value    T
	Warnings []error
}

func (o *Outcome[T]) warn(err error) {
	o.Warnings = append(o.Warnings, err)
}

// WarningMessages flattens Warnings for transport.
func (o Outcome[T]) WarningMessages() []string {
	if len(o.Warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(o.Warnings))
	for _, w := range o.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// inTx runs fn in a transaction, re-running it when an allocated identifier
// collides with a concurrent insert.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return ident.Retry(ctx, e.attempts(), func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, invalid(field, "expected YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
