package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

type reportBody struct {
	Body domain.Report `json:"body"`
}

func registerReports(api huma.API, e engine.Engine) {
	reload := func(ctx context.Context, id string) (*reportBody, error) {
		rep, err := e.GetReport(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		rep.Photos = nonNilSlice(rep.Photos)
		return &reportBody{Body: rep}, nil
	}
	notFound := func(id string) error {
		return newAPIError(http.StatusNotFound, "not_found", "report not found", map[string]any{"id": id})
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TaskID     string `query:"task_id"`
		PhaseID    string `query:"phase_id"`
		Validation string `query:"validation" doc:"Validation code or French label"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		f := repo.ReportFilters{TaskID: input.TaskID, PhaseID: input.PhaseID, Limit: pageLimit(input.Limit)}
		if input.Validation != "" {
			v, err := domain.ParseValidation(input.Validation)
			if err != nil {
				return nil, badRequest(err.Error(), map[string]any{"validation": input.Validation})
			}
			f.Validation = v
		}
		items, err := e.ListReports(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get report with photos",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*reportBody, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		return reload(ctx, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPatch,
		Path:        "/reports/{id}",
		Summary:     "Edit report content",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusRequestEntityTooLarge,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateReportRequest `json:"body"`
	}) (*reportBody, error) {
		p, err := requireRole(ctx, domain.RoleBrigade)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		opts := engine.ReportUpdateOptions{
			ID:          input.ID,
			Description: input.Body.Description,
			Advancement: input.Body.Advancement,
			ActorID:     p.ActorID,
		}
		if input.Body.Photos != nil {
			opts.Photos = nonNilSlice(*input.Body.Photos)
		}
		found, err := e.UpdateReport(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		if !found {
			return nil, notFound(input.ID)
		}
		return reload(ctx, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-report",
		Method:        http.MethodDelete,
		Path:          "/reports/{id}",
		Summary:       "Delete report and its photos",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		p, err := requireRole(ctx)
		if err != nil {
			return nil, err
		}
		found, err := e.DeleteReport(ctx, input.ID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		if !found {
			return nil, notFound(input.ID)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "judge-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/judgement",
		Summary:     "Approve a report or send it back for revision",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body JudgeReportRequest `json:"body"`
	}) (*reportBody, error) {
		p, err := requireRole(ctx, domain.RoleSection)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		found, err := e.JudgeReport(ctx, engine.JudgeOptions{
			ID:         input.ID,
			Validation: input.Body.Validation,
			Comment:    input.Body.Comment,
			ActorID:    p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !found {
			return nil, notFound(input.ID)
		}
		return reload(ctx, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report-photo",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/photos/{filename}",
		Summary:     "Download a report photo",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       string `path:"id"`
		Filename string `path:"filename"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		data, err := e.PhotoBytes(ctx, input.ID, input.Filename)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: http.DetectContentType(data), Body: data}, nil
	})
}
