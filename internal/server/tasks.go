package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

type taskPath struct {
	ID string `path:"id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task with its phases",
		Description:   "Notifies the brigade. A failed notification is returned as a warning.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleSection)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		in := input.Body
		opts := engine.TaskCreateOptions{
			Title:        in.Title,
			Description:  in.Description,
			PlannedStart: in.PlannedStart,
			PlannedEnd:   in.PlannedEnd,
			Status:       in.Status,
			BrigadeID:    in.BrigadeID,
			Employees:    in.Employees,
			Materials:    in.Materials,
			ActorID:      p.ActorID,
		}
		for _, ph := range in.Phases {
			opts.Phases = append(opts.Phases, engine.PhaseSpec{
				Name:         ph.Name,
				Description:  ph.Description,
				DurationDays: ph.DurationDays,
				PlannedStart: ph.PlannedStart,
				PlannedEnd:   ph.PlannedEnd,
			})
		}
		out, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		resp := taskResponse(out.Value)
		resp.Warnings = out.WarningMessages()
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status" doc:"Status code or French label"`
		BrigadeID string `query:"brigade_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		f := repo.TaskFilters{BrigadeID: input.BrigadeID}
		if input.Status != "" {
			s, err := domain.ParseTaskStatus(input.Status)
			if err != nil {
				return nil, badRequest(err.Error(), map[string]any{"status": input.Status})
			}
			f.Status = s
		}
		after, ok := parseTaskCursor(input.Cursor)
		if !ok {
			return nil, badRequest("invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := pageLimit(input.Limit)
		f.Limit = limit + 1
		f.CursorCreatedAt, f.CursorID = after.CreatedAt, after.ID
		items, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = taskCursor{CreatedAt: last.CreatedAt, ID: last.ID}.String()
			items = items[:limit]
		}
		resp.Items = mapTasks(items)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task with phases and progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Description: "Any status may follow any other. Completing a task late records its actual end.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleSection)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		in := input.Body
		found, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:           input.ID,
			Title:        in.Title,
			Description:  in.Description,
			PlannedStart: in.PlannedStart,
			PlannedEnd:   in.PlannedEnd,
			Status:       in.Status,
			BrigadeID:    in.BrigadeID,
			Employees:    in.Employees,
			Materials:    in.Materials,
			ActorID:      p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !found {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", map[string]any{"id": input.ID})
		}
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task, its phases, reports and photos",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		p, err := requireRole(ctx, domain.RoleSection)
		if err != nil {
			return nil, err
		}
		found, err := e.DeleteTask(ctx, input.ID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		if !found {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", map[string]any{"id": input.ID})
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-progress",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/progress",
		Summary:     "Phase-derived progress of a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.TaskProgress `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		prog, err := e.Progress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskProgress `json:"body"`
		}{Body: prog}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	advance := func(op, summary string, fn func(context.Context, string, string) (bool, error)) {
		huma.Register(api, huma.Operation{
			OperationID: op + "-phase",
			Method:      http.MethodPost,
			Path:        "/phases/{id}/" + op,
			Summary:     summary,
			Errors: []int{
				http.StatusBadRequest,
				http.StatusForbidden,
				http.StatusNotFound,
			},
		}, func(ctx context.Context, input *taskPath) (*struct {
			Body domain.Phase `json:"body"`
		}, error) {
			p, err := requireRole(ctx)
			if err != nil {
				return nil, err
			}
			found, err := fn(ctx, input.ID, p.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			if !found {
				return nil, newAPIError(http.StatusNotFound, "not_found", "phase not found", map[string]any{"id": input.ID})
			}
			ph, err := e.GetPhase(ctx, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Phase `json:"body"`
			}{Body: ph}, nil
		})
	}
	advance("start", "Start phase", e.StartPhase)
	advance("complete", "Complete phase", e.CompletePhase)

	huma.Register(api, huma.Operation{
		OperationID:   "submit-report",
		Method:        http.MethodPost,
		Path:          "/phases/{id}/reports",
		Summary:       "Submit a daily report on a phase",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusRequestEntityTooLarge,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body SubmitReportRequest `json:"body"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleBrigade)
		if err != nil {
			return nil, err
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		rep, err := e.SubmitReport(ctx, engine.ReportSubmitOptions{
			PhaseID:     input.ID,
			Description: input.Body.Description,
			ReportDate:  input.Body.ReportDate,
			Advancement: input.Body.Advancement,
			Photos:      input.Body.Photos,
			ActorID:     p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		rep.Photos = nonNilSlice(rep.Photos)
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-phase-reports",
		Method:      http.MethodGet,
		Path:        "/phases/{id}/reports",
		Summary:     "List reports of a phase",
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		if _, err := requireRole(ctx); err != nil {
			return nil, err
		}
		items, err := e.ListReports(ctx, repo.ReportFilters{PhaseID: input.ID, Limit: pageLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
