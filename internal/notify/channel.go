// Package notify is the pull side of notifications: a role asks for its most
// recent notifications and marks them read.
package notify

import (
	"context"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// Channel is the delivery contract shared by the local store and the HTTP
// client.
type Channel interface {
	// ListForRole returns the newest notifications for role, read or not.
	ListForRole(ctx context.Context, role domain.Role, limit int) ([]domain.Notification, error)
	// ListSince returns notifications after cursor (a seq), oldest first.
	ListSince(ctx context.Context, role domain.Role, cursor int64, limit int) ([]domain.Notification, error)
	// MarkRead is idempotent and reports false for an unknown id.
	MarkRead(ctx context.Context, id string) (bool, error)
	MarkAllRead(ctx context.Context, role domain.Role) (int, error)
}

// StoreChannel serves the contract from the database.
type StoreChannel struct {
	Repo   repo.Repo
	Config *config.Config
}

func NewStoreChannel(r repo.Repo, cfg *config.Config) StoreChannel {
	if cfg == nil {
		cfg = config.Default()
	}
	return StoreChannel{Repo: r, Config: cfg}
}

func (c StoreChannel) limit(n int) int {
	if c.Config == nil {
		return config.Default().ClampLimit(n)
	}
	return c.Config.ClampLimit(n)
}

func (c StoreChannel) ListForRole(ctx context.Context, role domain.Role, limit int) ([]domain.Notification, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	return c.Repo.ListNotificationsForRole(ctx, role, c.limit(limit))
}

func (c StoreChannel) ListSince(ctx context.Context, role domain.Role, cursor int64, limit int) ([]domain.Notification, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if cursor < 0 {
		cursor = 0
	}
	return c.Repo.ListNotificationsSince(ctx, role, cursor, c.limit(limit))
}

func (c StoreChannel) MarkRead(ctx context.Context, id string) (bool, error) {
	return c.Repo.MarkNotificationRead(ctx, id)
}

func (c StoreChannel) MarkAllRead(ctx context.Context, role domain.Role) (int, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return 0, err
	}
	return c.Repo.MarkAllNotificationsRead(ctx, role)
}

// Unread counts unread items. Over a ListForRole window it is bounded by
// the window size.
func Unread(items []domain.Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}
