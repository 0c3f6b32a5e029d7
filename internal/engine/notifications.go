package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/ident"
)

// NotifyOptions describe one notification addressed to a role.
type NotifyOptions struct {
	Role    domain.Role
	UserID  string
	Title   string
	Message string
	Payload domain.Payload
	ActorID string
}

func (o NotifyOptions) validate() error {
	if _, err := domain.ParseRole(string(o.Role)); err != nil {
		return invalid("role", "%v", err)
	}
	if strings.TrimSpace(o.Title) == "" {
		return invalid("title", "required")
	}
	if strings.TrimSpace(o.Message) == "" {
		return invalid("message", "required")
	}
	return nil
}

// Emit persists a notification in its own transaction.
func (e Engine) Emit(ctx context.Context, opts NotifyOptions) (domain.Notification, error) {
	if err := opts.validate(); err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = e.emitTx(ctx, tx, opts)
		return err
	})
	return n, err
}

// emitTx allocates the next N### id and writes the notification on tx. Any
// failure comes back as a *NotificationError.
func (e Engine) emitTx(ctx context.Context, tx *sql.Tx, opts NotifyOptions) (domain.Notification, error) {
	fail := func(err error) (domain.Notification, error) {
		if ident.IsConflict(err) {
			return domain.Notification{}, err
		}
		return domain.Notification{}, &NotificationError{Role: opts.Role, Err: err}
	}
	id, err := e.alloc().Next(ctx, tx, ident.Notification)
	if err != nil {
		return fail(err)
	}
	n := domain.Notification{
		ID:        id,
		Title:     opts.Title,
		Message:   opts.Message,
		Role:      opts.Role,
		UserID:    optionalString(opts.UserID),
		Payload:   opts.Payload,
		CreatedAt: e.stamp(),
	}
	n.Seq, err = e.Repo.InsertNotification(ctx, tx, n)
	if err != nil {
		return fail(err)
	}
	if err := e.Events.Append(ctx, tx, events.NotificationEmitted, "notification", n.ID, opts.ActorID, events.EventPayload{
		"role":  string(n.Role),
		"title": n.Title,
	}); err != nil {
		return fail(err)
	}
	return n, nil
}

// recordNotificationFailure leaves an audit trace of an advisory failure.
func (e Engine) recordNotificationFailure(ctx context.Context, entityKind, entityID, actorID string, cause error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.logger().Printf("notify: audit failure for %s %s: %v", entityKind, entityID, err)
		return
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, events.NotificationFailed, entityKind, entityID, actorID, events.EventPayload{"error": cause.Error()}); err != nil {
		e.logger().Printf("notify: audit failure for %s %s: %v", entityKind, entityID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		e.logger().Printf("notify: audit failure for %s %s: %v", entityKind, entityID, err)
	}
}

func describeLines(lines []domain.LineItem) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%s x %d", l.Name, l.Quantity))
	}
	return strings.Join(parts, ", ")
}
