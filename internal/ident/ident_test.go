package ident_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"fieldline/internal/db"
	"fieldline/internal/ident"
	"fieldline/internal/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func insertMaterial(conn *sql.DB, id string) error {
	_, err := conn.Exec(`INSERT INTO materials(id,name,stock,created_at) VALUES (?,?,0,'2024-01-01T00:00:00Z')`, id, "mat-"+id)
	return err
}

func TestNextOnEmptyTable(t *testing.T) {
	conn := openDB(t)
	id, err := ident.Allocator{}.Next(context.Background(), conn, ident.Task)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id != "T001" {
		t.Fatalf("expected T001, got %s", id)
	}
}

func TestNextFollowsNumericMaximum(t *testing.T) {
	conn := openDB(t)
	for _, id := range []string{"M001", "M005", "M009"} {
		if err := insertMaterial(conn, id); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	a := ident.Allocator{}
	id, err := a.Next(context.Background(), conn, ident.Material)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id != "M010" {
		t.Fatalf("expected M010, got %s", id)
	}
	if err := insertMaterial(conn, "M999"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, _ = a.Next(context.Background(), conn, ident.Material)
	if id != "M1000" {
		t.Fatalf("expected width overflow to M1000, got %s", id)
	}
}

func TestNextIgnoresForeignIDs(t *testing.T) {
	conn := openDB(t)
	if err := insertMaterial(conn, "Mxyz"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, err := ident.Allocator{Width: 4}.Next(context.Background(), conn, ident.Material)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id != "M0001" {
		t.Fatalf("expected M0001, got %s", id)
	}
}

func TestNextOnMissingTable(t *testing.T) {
	conn := openDB(t)
	if _, err := conn.Exec(`DROP TABLE material_request_lines; DROP TABLE material_requests;`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	id, err := ident.Allocator{}.Next(context.Background(), conn, ident.MaterialRequest)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id != "DM001" {
		t.Fatalf("expected DM001, got %s", id)
	}
}

func TestConflictDetection(t *testing.T) {
	conn := openDB(t)
	if err := insertMaterial(conn, "M001"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := insertMaterial(conn, "M001")
	if err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
	if !ident.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ident.IsConflict(errors.New("disk I/O error")) {
		t.Fatalf("plain error must not be a conflict")
	}
}

func TestRetryReallocatesOnConflict(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	a := ident.Allocator{}
	calls := 0
	var got string
	err := ident.Retry(ctx, 3, func() error {
		calls++
		id, err := a.Next(ctx, conn, ident.Material)
		if err != nil {
			return err
		}
		if calls == 1 {
			// another writer takes the id between allocation and insert
			if err := insertMaterial(conn, id); err != nil {
				return err
			}
		}
		got = id
		_, err = conn.Exec(`INSERT INTO materials(id,name,stock,created_at) VALUES (?,?,0,'2024-01-01T00:00:00Z')`, id, "mine-"+id)
		return err
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 2 || got != "M002" {
		t.Fatalf("calls=%d id=%s", calls, got)
	}
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := ident.Retry(context.Background(), 5, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestSequentialAllocationIsUnique(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	a := ident.Allocator{}
	seen := map[string]bool{}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "inserts")
		for i := 0; i < n; i++ {
			id, err := a.Next(ctx, conn, ident.Material)
			if err != nil {
				rt.Fatalf("next: %v", err)
			}
			if seen[id] {
				rt.Fatalf("identifier %s allocated twice", id)
			}
			seen[id] = true
			if err := insertMaterial(conn, id); err != nil {
				rt.Fatalf("insert %s: %v", id, err)
			}
		}
	})
}
