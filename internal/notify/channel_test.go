package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

func newChannel(t *testing.T) notify.StoreChannel {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	cfg := config.Default()
	cfg.Notifications.ListLimit = 5
	cfg.Notifications.MaxListLimit = 8
	return notify.NewStoreChannel(repo.Repo{DB: conn}, cfg)
}

func seed(t *testing.T, ch notify.StoreChannel, role domain.Role, from, count int) {
	t.Helper()
	ctx := context.Background()
	tx, err := ch.Repo.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	for i := from; i < from+count; i++ {
		n := domain.Notification{ID: fmt.Sprintf("N%03d", i), Title: "t", Message: "m", Role: role, CreatedAt: "2024-03-01T08:00:00Z"}
		if _, err := ch.Repo.InsertNotification(ctx, tx, n); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestListForRoleIsolatesRolesAndCapsWindow(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()
	seed(t, ch, domain.RoleBrigade, 1, 10)
	seed(t, ch, domain.RoleSection, 11, 2)

	items, err := ch.ListForRole(ctx, domain.RoleBrigade, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 5 || items[0].ID != "N010" {
		t.Fatalf("expected default window of 5 newest first, got %d starting %s", len(items), items[0].ID)
	}
	for _, it := range items {
		if it.Role != domain.RoleBrigade {
			t.Fatalf("foreign role leaked: %+v", it)
		}
	}
	items, _ = ch.ListForRole(ctx, domain.RoleBrigade, 100)
	if len(items) != 8 {
		t.Fatalf("expected max window 8, got %d", len(items))
	}
	if notify.Unread(items) != 8 {
		t.Fatalf("unread count must be bounded by the window, got %d", notify.Unread(items))
	}
	if _, err := ch.ListForRole(ctx, "admin", 5); err == nil {
		t.Fatalf("unknown role must be rejected")
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()
	seed(t, ch, domain.RoleSection, 1, 2)
	for i := 0; i < 3; i++ {
		ok, err := ch.MarkRead(ctx, "N001")
		if err != nil || !ok {
			t.Fatalf("pass %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := ch.MarkRead(ctx, "N999")
	if err != nil || ok {
		t.Fatalf("missing id: ok=%v err=%v", ok, err)
	}
	items, _ := ch.ListForRole(ctx, domain.RoleSection, 5)
	if notify.Unread(items) != 1 {
		t.Fatalf("expected one unread left, got %d", notify.Unread(items))
	}
	n, err := ch.MarkAllRead(ctx, domain.RoleSection)
	if err != nil || n != 1 {
		t.Fatalf("mark all: %d %v", n, err)
	}
}

func TestListSinceFollowsSeq(t *testing.T) {
	ch := newChannel(t)
	ctx := context.Background()
	seed(t, ch, domain.RoleSection, 1, 3)
	all, err := ch.ListSince(ctx, domain.RoleSection, 0, 10)
	if err != nil || len(all) != 3 || all[0].ID != "N001" {
		t.Fatalf("since 0: %+v %v", all, err)
	}
	rest, _ := ch.ListSince(ctx, domain.RoleSection, all[1].Seq, 10)
	if len(rest) != 1 || rest[0].ID != "N003" {
		t.Fatalf("since %d: %+v", all[1].Seq, rest)
	}
}

func TestMissingTableIsStorageUnavailable(t *testing.T) {
	ch := newChannel(t)
	if _, err := ch.Repo.DB.Exec(`DROP TABLE notifications`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_, err := ch.ListForRole(context.Background(), domain.RoleSection, 5)
	if !errors.Is(err, repo.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}
