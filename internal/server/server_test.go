package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldline/internal/blob"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), blob.NewMem())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, actor string, role domain.Role) map[string]string {
	t.Helper()
	token, err := signDevToken(testSecret, actor, role, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, data)
	}
	return env.Error.Code
}

func countNotifications(t *testing.T, srv *testServer) int {
	t.Helper()
	total := 0
	for _, role := range []domain.Role{domain.RoleSection, domain.RoleBrigade} {
		items, err := srv.Engine.Repo.ListNotificationsForRole(context.Background(), role, 100)
		if err != nil {
			t.Fatalf("list %s notifications: %v", role, err)
		}
		total += len(items)
	}
	return total
}

func createTask(t *testing.T, srv *testServer, phases ...string) TaskResponse {
	t.Helper()
	body := map[string]any{
		"title":         "Pose de bordures",
		"planned_start": "2024-04-01",
		"planned_end":   "2024-04-10",
		"brigade_id":    "brigade-7",
	}
	var ps []map[string]any
	for _, name := range phases {
		ps = append(ps, map[string]any{"name": name, "duration_days": 3})
	}
	if ps != nil {
		body["phases"] = ps
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", body, bearer(t, "section-1", domain.RoleSection))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, data)
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return created
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d: %s", res.StatusCode, data)
	}
	// Role headers are ignored unless enabled.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"X-Role": "chef_section"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("role header must not authenticate, got %d", res.StatusCode)
	}
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "brigade-7",
		"role":     "chef_brigade",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("decode token: %v %s", err, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/notifications", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications with dev token: %d %s", res.StatusCode, data)
	}

	key := domain.APIKey{ID: "key-1", ActorID: "tablet-3", Role: domain.RoleSection, KeyHash: repo.HashAPIKey("s3cret"), CreatedAt: "2024-03-01T00:00:00Z"}
	if err := srv.Engine.Repo.InsertAPIKey(context.Background(), key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/materials", map[string]any{"name": "Ciment", "unit": "sac"}, map[string]string{"X-Api-Key": "s3cret"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add material via api key: %d %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/materials", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad api key accepted: %d", res.StatusCode)
	}
}

func TestBrigadeCannotCreateTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "x"}, bearer(t, "brigade-7", domain.RoleBrigade))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, data)
	}
}

func TestCreateTaskNotifiesBrigade(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createTask(t, srv, "Terrassement", "Pose")
	if created.ID != "T001" || len(created.Phases) != 2 || created.Progress == nil || created.Progress.Total != 2 {
		t.Fatalf("unexpected task: %+v", created)
	}
	if len(created.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", created.Warnings)
	}

	brigade := bearer(t, "brigade-7", domain.RoleBrigade)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/notifications", nil, brigade)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications %d: %s", res.StatusCode, data)
	}
	var window notificationWindow
	if err := json.Unmarshal(data, &window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if len(window.Items) != 1 || window.Unread != 1 {
		t.Fatalf("expected one unread notification, got %+v", window)
	}
	n := window.Items[0]
	if n.Payload.TaskID != "T001" || n.Redirect != "/brigade/taches/T001" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// The section does not see brigade notifications.
	section := bearer(t, "section-1", domain.RoleSection)
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/notifications/"+n.ID+"/read", nil, section)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign role mark read: %d", res.StatusCode)
	}
	for i := 0; i < 2; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/notifications/"+n.ID+"/read", nil, brigade)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("mark read pass %d: %d %s", i, res.StatusCode, data)
		}
	}
	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/notifications", nil, brigade)
	window = notificationWindow{}
	_ = json.Unmarshal(data, &window)
	if window.Unread != 0 || !window.Items[0].Read {
		t.Fatalf("expected read notification, got %+v", window)
	}
}

func TestCreateTaskSurvivesNotificationFailure(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	if _, err := srv.Engine.DB.Exec(`DROP TABLE notifications`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	created := createTask(t, srv)
	if created.ID == "" || len(created.Warnings) != 1 {
		t.Fatalf("expected created task with a warning, got %+v", created)
	}
}

func TestPhaseAndReportFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createTask(t, srv, "Terrassement")
	phaseID := created.Phases[0].ID
	brigade := bearer(t, "brigade-7", domain.RoleBrigade)
	section := bearer(t, "section-1", domain.RoleSection)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/phases/"+phaseID+"/start", nil, brigade)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start phase %d: %s", res.StatusCode, data)
	}
	var phase domain.Phase
	_ = json.Unmarshal(data, &phase)
	if phase.Status != domain.PhaseInProgress || phase.ActualStart == nil {
		t.Fatalf("phase not started: %+v", phase)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/phases/"+phaseID+"/reports", map[string]any{
		"description": "Fouille terminée à moitié",
		"advancement": 50,
	}, brigade)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit report %d: %s", res.StatusCode, data)
	}
	var rep domain.Report
	_ = json.Unmarshal(data, &rep)
	if rep.ID != "R001" || rep.Validation != domain.ValidationPending {
		t.Fatalf("unexpected report: %+v", rep)
	}

	judge := srv.URL + "/v0/reports/" + rep.ID + "/judgement"
	res, data = doJSON(t, srv.Client(), http.MethodPost, judge, map[string]any{"validation": "Peut-être"}, section)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown label: %d %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, judge, map[string]any{"validation": "Approuvé"}, brigade)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("brigade judged a report: %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, judge, map[string]any{"comment": "photo 2 floue ?"}, section)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("comment-only judgement %d: %s", res.StatusCode, data)
	}
	_ = json.Unmarshal(data, &rep)
	if rep.Validation != domain.ValidationPending || rep.Comment == nil || *rep.Comment != "photo 2 floue ?" {
		t.Fatalf("comment-only judgement changed the verdict: %+v", rep)
	}
	before := countNotifications(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodPost, judge, map[string]any{"validation": "Approuvé", "comment": "RAS"}, section)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("judge %d: %s", res.StatusCode, data)
	}
	_ = json.Unmarshal(data, &rep)
	if rep.Validation != domain.ValidationApproved || rep.Comment == nil || *rep.Comment != "RAS" {
		t.Fatalf("verdict not recorded: %+v", rep)
	}
	if after := countNotifications(t, srv); after != before {
		t.Fatalf("judging must not notify: %d notifications before, %d after", before, after)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports/R999/judgement", map[string]any{"validation": "approved"}, section)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing report: %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/phases/"+phaseID+"/complete", nil, brigade)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete phase %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/phases/"+phaseID+"/start", nil, brigade)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "validation_failed" {
		t.Fatalf("reverse move: %d %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+created.ID+"/progress", nil, section)
	var prog domain.TaskProgress
	_ = json.Unmarshal(data, &prog)
	if res.StatusCode != http.StatusOK || prog.Done != 1 || prog.Fraction != 1 {
		t.Fatalf("progress %d: %s", res.StatusCode, data)
	}
}

func TestUpdateAndDeleteTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createTask(t, srv)
	section := bearer(t, "section-1", domain.RoleSection)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID, map[string]any{"status": "En pause"}, section)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update %d: %s", res.StatusCode, data)
	}
	var updated TaskResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != domain.TaskPaused {
		t.Fatalf("status not applied: %+v", updated)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/tasks/T404", map[string]any{"title": "x"}, section)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task update: %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks?status=paused", nil, section)
	var page paginatedTasks
	_ = json.Unmarshal(data, &page)
	if res.StatusCode != http.StatusOK || len(page.Items) != 1 {
		t.Fatalf("filtered list %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+created.ID, nil, section)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, section)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted task still readable: %d", res.StatusCode)
	}
}

func TestListTasksPaginates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	for i := 0; i < 3; i++ {
		createTask(t, srv)
	}
	section := bearer(t, "section-1", domain.RoleSection)
	seen := map[string]bool{}
	cursor := ""
	for pages := 0; pages < 5; pages++ {
		url := srv.URL + "/v0/tasks?limit=2"
		if cursor != "" {
			url += "&cursor=" + cursor
		}
		res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil, section)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list %d: %s", res.StatusCode, data)
		}
		var page paginatedTasks
		_ = json.Unmarshal(data, &page)
		for _, it := range page.Items {
			seen[it.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 3 {
		t.Fatalf("expected all three tasks across pages, saw %v", seen)
	}
}

func TestMaterialRequestNotificationFailureIs502(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createTask(t, srv)
	brigade := bearer(t, "brigade-7", domain.RoleBrigade)
	url := srv.URL + "/v0/tasks/" + created.ID + "/material-requests"
	body := map[string]any{"materiels": []map[string]any{{"nom": "Ciment", "quantite": 4}}}

	res, data := doJSON(t, srv.Client(), http.MethodPost, url, body, brigade)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request materials %d: %s", res.StatusCode, data)
	}
	section := bearer(t, "section-1", domain.RoleSection)
	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/notifications", nil, section)
	var window notificationWindow
	_ = json.Unmarshal(data, &window)
	if len(window.Items) != 1 || window.Items[0].Redirect != "/materiels?filtre=demandes&taskId=T001&demandeId=DM001" {
		t.Fatalf("unexpected section notification: %s", data)
	}

	if _, err := srv.Engine.DB.Exec(`DROP TABLE notifications`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, url, body, brigade)
	if res.StatusCode != http.StatusBadGateway || errorCode(t, data) != "notification_failed" {
		t.Fatalf("expected 502, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/material-requests", nil, section)
	var reqs []domain.MaterialRequest
	_ = json.Unmarshal(data, &reqs)
	if res.StatusCode != http.StatusOK || len(reqs) != 1 {
		t.Fatalf("failed request must not be kept: %d %s", res.StatusCode, data)
	}
}

func TestWebhookRelayForwardsNewNotifications(t *testing.T) {
	var mu sync.Mutex
	var got []http.Header
	var raws [][]byte
	var bodies []webhookNotification
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var n webhookNotification
		_ = json.Unmarshal(raw, &n)
		mu.Lock()
		got = append(got, r.Header.Clone())
		raws = append(raws, raw)
		bodies = append(bodies, n)
		mu.Unlock()
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t)
	defer cleanup()
	createTask(t, srv)

	e := srv.Engine
	e.Config = config.Default()
	e.Config.Webhooks = []config.WebhookConfig{{URL: hook.URL, Role: "chef_brigade", Secret: "shh"}}
	relay := newWebhookRelay(e, nil)
	ctx := context.Background()

	relay.dispatchAll(ctx)
	if len(got) != 0 {
		t.Fatalf("existing notifications must not be replayed, got %d", len(got))
	}
	createTask(t, srv)
	relay.dispatchAll(ctx)
	relay.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].Get("X-Fieldline-Notification") != "N002" || got[0].Get("X-Fieldline-Role") != "chef_brigade" {
		t.Fatalf("unexpected headers: %v", got[0])
	}
	if sig := got[0].Get("X-Fieldline-Signature"); sig != signBody("shh", raws[0]) {
		t.Fatalf("signature mismatch: %q", sig)
	}
	if bodies[0].Redirect != "/brigade/taches/T002" {
		t.Fatalf("unexpected body: %+v", bodies[0])
	}
}
