package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func registerMaterials(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-material",
		Method:        http.MethodPost,
		Path:          "/materials",
		Summary:       "Add a catalog material",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMaterialRequest `json:"body"`
	}) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleSection)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		m, err := e.AddMaterial(ctx, engine.MaterialCreateOptions{
			Name:    input.Body.Name,
			Unit:    input.Body.Unit,
			Stock:   input.Body.Stock,
			ActorID: p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-materials",
		Method:      http.MethodGet,
		Path:        "/materials",
		Summary:     "List catalog materials",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Material `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		items, err := e.ListMaterials(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Material `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-materials",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/material-requests",
		Summary:       "Request materials for a task",
		Description:   "Notifies the section. When the notification cannot be stored nothing is kept and 502 is returned.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body RequestMaterialsRequest `json:"body"`
	}) (*struct {
		Body domain.MaterialRequest `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleBrigade)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		req, err := e.RequestMaterials(ctx, engine.MaterialRequestOptions{
			TaskID:  input.ID,
			Lines:   input.Body.Materiels,
			ActorID: p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		req.Lines = nonNilSlice(req.Lines)
		return &struct {
			Body domain.MaterialRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-material-requests",
		Method:      http.MethodGet,
		Path:        "/material-requests",
		Summary:     "List material requests newest first",
	}, func(ctx context.Context, input *struct {
		TaskID string `query:"task_id"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.MaterialRequest `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		items, err := e.ListMaterialRequests(ctx, repo.MaterialRequestFilters{TaskID: input.TaskID, Limit: pageLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MaterialRequest `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-material-request",
		Method:      http.MethodGet,
		Path:        "/material-requests/{id}",
		Summary:     "Get a material request with its lines",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.MaterialRequest `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		req, err := e.GetMaterialRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		req.Lines = nonNilSlice(req.Lines)
		return &struct {
			Body domain.MaterialRequest `json:"body"`
		}{Body: req}, nil
	})
}
