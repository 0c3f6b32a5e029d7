package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/blob"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
	"fieldline/internal/repo"
)

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("task T009: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{engine.ValidationError{Field: "advancement", Reason: "must be 0..100"}, http.StatusBadRequest, "validation_failed"},
		{auth.ForbiddenError{Role: domain.RoleBrigade, Allowed: []domain.Role{domain.RoleSection}}, http.StatusForbidden, "forbidden"},
		{&engine.NotificationError{Role: domain.RoleSection, Err: repo.ErrStorageUnavailable}, http.StatusBadGateway, "notification_failed"},
		{fmt.Errorf("insert: %w", repo.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage_unavailable"},
		{blob.ErrTooLarge, http.StatusRequestEntityTooLarge, "photo_too_large"},
		{fmt.Errorf("label: %w", domain.ErrUnknownValue), http.StatusBadRequest, "bad_request"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		se := handleError(tc.err)
		got, ok := se.(*apiError)
		if !ok {
			t.Fatalf("%v: unexpected type %T", tc.err, se)
		}
		if got.status != tc.status || got.Body.Code != tc.code {
			t.Fatalf("%v: got %d %s, want %d %s", tc.err, got.status, got.Body.Code, tc.status, tc.code)
		}
	}
	if handleError(nil) != nil {
		t.Fatalf("nil error must map to nil")
	}
}

func TestParseSeqCursor(t *testing.T) {
	if n, err := parseSeqCursor(""); err != nil || n != 0 {
		t.Fatalf("empty cursor: %d %v", n, err)
	}
	if n, err := parseSeqCursor("42"); err != nil || n != 42 {
		t.Fatalf("numeric cursor: %d %v", n, err)
	}
	for _, bad := range []string{"-1", "abc"} {
		_, err := parseSeqCursor(bad)
		var se huma.StatusError
		if !errors.As(err, &se) || se.GetStatus() != http.StatusBadRequest {
			t.Fatalf("cursor %q: expected 400, got %v", bad, err)
		}
	}
}

func TestTaskCursor(t *testing.T) {
	c, ok := parseTaskCursor("2024-04-01T08:00:00Z|T004")
	if !ok || c.CreatedAt != "2024-04-01T08:00:00Z" || c.ID != "T004" {
		t.Fatalf("parse: %+v %v", c, ok)
	}
	if c.String() != "2024-04-01T08:00:00Z|T004" {
		t.Fatalf("round trip: %s", c.String())
	}
	if _, ok := parseTaskCursor("T004"); ok {
		t.Fatalf("cursor without separator must be rejected")
	}
	if c, ok := parseTaskCursor(""); !ok || c.String() != "" {
		t.Fatalf("empty cursor means first page")
	}
	if pageLimit(0) != defaultPageSize || pageLimit(1000) != maxPageSize || pageLimit(7) != 7 {
		t.Fatalf("page limits")
	}
}

func TestOpenAPIAndHealthArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, data)
	}
	doc := string(data)
	for _, want := range []string{"bearerAuth", "apiKeyAuth", "/v0/tasks", "/v0/notifications"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("openapi document lacks %q", want)
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"storage":"ok"`) {
		t.Fatalf("health: %d %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res.StatusCode)
	}
}
