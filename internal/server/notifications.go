package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

// registerNotifications serves the caller's own role channel. A notification
// addressed to the other role is reported as not found.
func registerNotifications(api huma.API, e engine.Engine, ch notify.Channel) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Newest notifications for the caller's role",
		Description: "The unread count covers the returned window only.",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body notificationWindow `json:"body"`
	}, error) {
		p, err := requireRole(ctx)
		if err != nil {
			return nil, err
		}
		items, err := ch.ListForRole(ctx, p.Role, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notificationWindow `json:"body"`
		}{Body: notificationWindow{Items: mapNotifications(items), Unread: notify.Unread(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "notifications-since",
		Method:      http.MethodGet,
		Path:        "/notifications/since",
		Summary:     "Notifications after a sequence cursor, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Cursor string `query:"cursor"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body notificationPage `json:"body"`
	}, error) {
		p, err := requireRole(ctx)
		if err != nil {
			return nil, err
		}
		cursor, err := parseSeqCursor(input.Cursor)
		if err != nil {
			return nil, err
		}
		items, err := ch.ListSince(ctx, p.Role, cursor, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		resp := notificationPage{Items: mapNotifications(items), NextCursor: cursor}
		if n := len(items); n > 0 {
			resp.NextCursor = items[n-1].Seq
		}
		return &struct {
			Body notificationPage `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark one notification read",
		Description: "Idempotent.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body NotificationResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx)
		if err != nil {
			return nil, err
		}
		n, err := e.Repo.GetNotification(ctx, input.ID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && n.Role != p.Role) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "notification not found", map[string]any{"id": input.ID})
		}
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := ch.MarkRead(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		n.Read = true
		return &struct {
			Body NotificationResponse `json:"body"`
		}{Body: notificationResponse(n)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every notification of the caller's role read",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		p, err := requireRole(ctx)
		if err != nil {
			return nil, err
		}
		count, err := ch.MarkAllRead(ctx, p.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"updated": count}}, nil
	})
}

type eventQuery struct {
	Type       string `query:"type"`
	EntityKind string `query:"entity_kind" enum:"task,phase,report,material,material_request,notification"`
	EntityID   string `query:"entity_id"`
	Limit      int    `query:"limit" default:"50"`
	Cursor     string `query:"cursor" doc:"id of the last event of the previous page"`
}

type eventsOutput struct {
	Body paginatedEvents `json:"body"`
}

// registerEvents exposes the audit log, newest first, to the section.
func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, in *eventQuery) (*eventsOutput, error) {
		if _, err := requireRole(ctx, domain.RoleSection); err != nil {
			return nil, err
		}
		before, err := parseSeqCursor(in.Cursor)
		if err != nil {
			return nil, err
		}
		size := pageLimit(in.Limit)
		// One extra row tells whether another page exists.
		found, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       in.Type,
			EntityKind: in.EntityKind,
			EntityID:   in.EntityID,
			Limit:      size + 1,
			Cursor:     before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &eventsOutput{}
		out.Body.Items = make([]EventResponse, 0, min(len(found), size))
		for i, evt := range found {
			if i == size {
				out.Body.NextCursor = strconv.FormatInt(found[size-1].ID, 10)
				break
			}
			out.Body.Items = append(out.Body.Items, eventResponse(evt))
		}
		return out, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, badRequest("actor_id is required", nil)
		}
		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"field": "role"})
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, role, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
