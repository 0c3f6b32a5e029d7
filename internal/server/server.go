// Package server exposes the engine over a huma REST API.
package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fieldline/internal/engine"
	"fieldline/internal/notify"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// Channel serves notification reads; it defaults to the store-backed
	// channel over Engine.Repo.
	Channel  notify.Channel
	BasePath string
	Auth     AuthConfig
}

// New returns an HTTP handler exposing the Fieldline API.
func New(cfg Config) (http.Handler, error) {
	basePath := "/" + strings.Trim(cfg.BasePath, "/")
	if basePath == "/" {
		basePath = "/v0"
	}
	if cfg.Channel == nil {
		cfg.Channel = notify.NewStoreChannel(cfg.Engine.Repo, cfg.Engine.Config)
	}
	useEnvelopeErrors()

	// Paths reachable without credentials.
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
		path.Join(basePath, "openapi.json"):   true,
	}

	router := chi.NewRouter()
	router.Use(captureBody)
	router.Use(authenticator{basePath: basePath, open: open, cfg: cfg.Auth, repo: cfg.Engine.Repo}.middleware)

	hcfg := huma.DefaultConfig("Fieldline API", "0.1.0")
	hcfg.Info.Description = "Task, phase, report and material workflow between a section and its brigades, with role-targeted notifications."
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerPhases(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerMaterials(group, cfg.Engine)
	registerNotifications(group, cfg.Engine, cfg.Channel)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath, open)

	return router, nil
}

// useEnvelopeErrors routes huma's own errors through the envelope. Request
// schema failures are reported as 400.
func useEnvelopeErrors() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}
}

type bodyKey struct{}

// captureBody keeps the raw request body on the context so handlers can
// tell an empty body from a zero-valued one.
func captureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey{}, raw)))
	})
}

func requireBody(ctx context.Context) error {
	raw, _ := ctx.Value(bodyKey{}).([]byte)
	if len(bytes.TrimSpace(raw)) == 0 {
		return badRequest("body required", nil)
	}
	return nil
}
