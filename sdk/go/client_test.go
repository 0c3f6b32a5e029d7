package fieldlinesdk

import (
	"context"
	"net/http/httptest"
	"testing"

	"fieldline/internal/blob"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
	"fieldline/internal/server"
)

var _ notify.Channel = (*Client)(nil)

func newAPI(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), blob.NewMem())
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return srv.URL
}

func TestClientDrivesTaskAndNotifications(t *testing.T) {
	base := newAPI(t)
	ctx := context.Background()

	section := New(base)
	if _, err := section.DevLogin(ctx, "section-1", domain.RoleSection); err != nil {
		t.Fatalf("login section: %v", err)
	}
	brigade := New(base)
	if _, err := brigade.DevLogin(ctx, "brigade-7", domain.RoleBrigade); err != nil {
		t.Fatalf("login brigade: %v", err)
	}

	poller := notify.NewPoller(brigade, domain.RoleBrigade, 10)
	if _, err := poller.Poll(ctx); err != nil {
		t.Fatalf("prime poller: %v", err)
	}

	task, err := section.CreateTask(ctx, NewTask{
		Title:        "Curage caniveau",
		PlannedStart: "2024-05-02",
		Phases:       []Phase{{Name: "Curage", DurationDays: 1}},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == "" || len(task.Phases) != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}

	up, err := poller.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(up.Fresh) != 1 || up.Fresh[0].Payload.TaskID != task.ID || up.Unread != 1 {
		t.Fatalf("expected the new task notification, got %+v", up)
	}
	if ok, err := poller.MarkRead(ctx, up.Fresh[0].ID); err != nil || !ok {
		t.Fatalf("mark read: %v %v", ok, err)
	}
	if ok, err := brigade.MarkRead(ctx, "N999"); err != nil || ok {
		t.Fatalf("unknown id: %v %v", ok, err)
	}
	if _, err := brigade.ListForRole(ctx, domain.RoleSection, 5); err == nil {
		t.Fatalf("client must refuse another role's channel")
	}

	if _, err := brigade.StartPhase(ctx, task.Phases[0].ID); err != nil {
		t.Fatalf("start phase: %v", err)
	}
	rep, err := brigade.SubmitReport(ctx, task.Phases[0].ID, "Caniveau dégagé", 100, nil)
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	judged, err := section.JudgeReport(ctx, rep.ID, "À réviser", nil)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if judged.Validation != domain.ValidationNeedsRevision {
		t.Fatalf("verdict: %+v", judged)
	}

	req, err := brigade.RequestMaterials(ctx, task.ID, []domain.LineItem{{Name: "Pelle", Quantity: 2}})
	if err != nil {
		t.Fatalf("request materials: %v", err)
	}
	w, err := section.Notifications(ctx, 0)
	if err != nil {
		t.Fatalf("section notifications: %v", err)
	}
	if len(w.Items) != 1 || w.Items[0].Payload.DemandeID != req.ID {
		t.Fatalf("unexpected section window: %+v", w)
	}
	if n, err := section.MarkAllRead(ctx, domain.RoleSection); err != nil || n != 1 {
		t.Fatalf("mark all: %d %v", n, err)
	}

	page, err := section.EventsPage(ctx, 100, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) == 0 {
		t.Fatalf("expected events")
	}
	if _, err := brigade.EventsPage(ctx, 10, ""); err == nil {
		t.Fatalf("brigade must not read the event log")
	}
}
