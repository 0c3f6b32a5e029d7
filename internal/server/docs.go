package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"fieldline/internal/engine"
)

var (
	bearerSecurity = map[string][]string{"bearerAuth": {}}
	apiKeySecurity = map[string][]string{"apiKeyAuth": {}}
)

func registerDocs(r chi.Router, basePath string) {
	page := docsPage(path.Join("/", basePath, "openapi.json"))
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, page)
	})
}

// registerOpenAPI serves the document with the error envelope and security
// schemes filled in. It is built on first request, after every operation is
// registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string, open map[string]bool) {
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorate(oas, open)
			doc, err = json.Marshal(oas)
		})
		if err != nil {
			writeError(w, newAPIError(http.StatusInternalServerError, "", "openapi: "+err.Error(), nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func decorate(oas *huma.OpenAPI, open map[string]bool) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	security := []map[string][]string{bearerSecurity, apiKeySecurity}
	oas.Security = security

	var envelope *huma.Schema
	if oas.Components.Schemas != nil {
		envelope = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			if envelope != nil {
				if op.Responses == nil {
					op.Responses = map[string]*huma.Response{}
				}
				op.Responses["default"] = &huma.Response{
					Description: "Error",
					Content:     map[string]*huma.MediaType{"application/json": {Schema: envelope}},
				}
			}
			if open[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = security
			}
		}
	}
}

func docsPage(specURL string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="fr">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fieldline API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui', persistAuthorization: true });
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Bearer token from POST /auth/dev/login or 'fl token', or an X-Api-Key from 'fl key create'.
    </p>
  </body>
</html>`, specURL)
}

type healthOutput struct {
	Body struct {
		Status  string `json:"status" example:"ok"`
		Storage string `json:"storage" enum:"ok,unavailable"`
	}
}

// registerHealth reports the process as up even when the database is not;
// storage carries the database state.
func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"meta"},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.Storage = "ok"
		if e.DB == nil || e.DB.PingContext(ctx) != nil {
			out.Body.Storage = "unavailable"
		}
		return out, nil
	})
}
