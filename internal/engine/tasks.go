package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/ident"
	"fieldline/internal/repo"
)

// PhaseSpec describes one phase of a new task. Missing planned dates are
// chained from the task start using DurationDays.
type PhaseSpec struct {
	Name         string
	Description  string
	DurationDays int
	PlannedStart string
	PlannedEnd   string
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title        string
	Description  string
	PlannedStart string
	PlannedEnd   string
	Status       string
	BrigadeID    string
	Employees    []string
	Materials    []domain.TaskMaterial
	Phases       []PhaseSpec
	ActorID      string
}

func (o TaskCreateOptions) validate() (domain.TaskStatus, error) {
	if strings.TrimSpace(o.Title) == "" {
		return "", invalid("title", "required")
	}
	status := domain.TaskPending
	if o.Status != "" {
		s, err := domain.ParseTaskStatus(o.Status)
		if err != nil {
			return "", invalid("status", "%v", err)
		}
		status = s
	}
	if err := checkRange("planned", o.PlannedStart, o.PlannedEnd); err != nil {
		return "", err
	}
	for i, p := range o.Phases {
		if strings.TrimSpace(p.Name) == "" {
			return "", invalid("phases", "phase %d has no name", i+1)
		}
		if p.DurationDays < 0 {
			return "", invalid("phases", "phase %d has a negative duration", i+1)
		}
		if err := checkRange("phases", p.PlannedStart, p.PlannedEnd); err != nil {
			return "", err
		}
	}
	if err := validateMaterials(o.Materials); err != nil {
		return "", err
	}
	return status, nil
}

func checkRange(field, start, end string) error {
	var s, en string
	if start != "" {
		t, err := parseDate(field, start)
		if err != nil {
			return err
		}
		s = t.Format(dateLayout)
	}
	if end != "" {
		t, err := parseDate(field, end)
		if err != nil {
			return err
		}
		en = t.Format(dateLayout)
	}
	if s != "" && en != "" && en < s {
		return invalid(field, "end %s before start %s", end, start)
	}
	return nil
}

func validateMaterials(ms []domain.TaskMaterial) error {
	for _, m := range ms {
		if strings.TrimSpace(m.MaterialID) == "" {
			return invalid("materials", "material id required")
		}
		if m.Quantity <= 0 {
			return invalid("materials", "quantity for %s must be positive", m.MaterialID)
		}
	}
	return nil
}

// planPhases turns specs into phases with chained planned dates.
func planPhases(taskID, taskStart string, specs []PhaseSpec) []domain.Phase {
	cursor := taskStart
	phases := make([]domain.Phase, 0, len(specs))
	for i, s := range specs {
		p := domain.Phase{
			TaskID:       taskID,
			Order:        i + 1,
			Name:         strings.TrimSpace(s.Name),
			Description:  s.Description,
			DurationDays: s.DurationDays,
			Status:       domain.PhaseWaiting,
		}
		start := s.PlannedStart
		if start == "" {
			start = cursor
		}
		end := s.PlannedEnd
		if end == "" && start != "" {
			// start was validated or chained from a validated date
			if t, err := parseDate("phases", start); err == nil {
				end = t.AddDate(0, 0, s.DurationDays).Format(dateLayout)
			}
		}
		p.PlannedStart = optionalString(start)
		p.PlannedEnd = optionalString(end)
		if end != "" {
			cursor = end
		} else if start != "" {
			cursor = start
		}
		phases = append(phases, p)
	}
	return phases
}

// CreateTask persists a task with its phases, then tells the brigade. The
// notification is advisory: its failure is logged and returned as a warning
// while the task stays committed.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (Outcome[domain.Task], error) {
	var out Outcome[domain.Task]
	status, err := opts.validate()
	if err != nil {
		return out, err
	}
	var t domain.Task
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		id, err := e.alloc().Next(ctx, tx, ident.Task)
		if err != nil {
			return err
		}
		now := e.stamp()
		t = domain.Task{
			ID:           id,
			Title:        strings.TrimSpace(opts.Title),
			Description:  opts.Description,
			PlannedStart: opts.PlannedStart,
			PlannedEnd:   opts.PlannedEnd,
			Status:       status,
			BrigadeID:    optionalString(opts.BrigadeID),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		t.Phases = planPhases(t.ID, t.PlannedStart, opts.Phases)
		for i := range t.Phases {
			pid, err := e.alloc().Next(ctx, tx, ident.Phase)
			if err != nil {
				return err
			}
			t.Phases[i].ID = pid
			if err := e.Repo.InsertPhase(ctx, tx, t.Phases[i]); err != nil {
				return err
			}
		}
		if err := e.Repo.ReplaceTaskEmployees(ctx, tx, t.ID, opts.Employees); err != nil {
			return err
		}
		if err := e.ensureMaterials(ctx, tx, opts.Materials); err != nil {
			return err
		}
		if err := e.Repo.ReplaceTaskMaterials(ctx, tx, t.ID, opts.Materials); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, opts.ActorID, events.EventPayload{
			"title":  t.Title,
			"status": string(t.Status),
			"phases": len(t.Phases),
		})
	})
	if err != nil {
		return out, err
	}
	if reloaded, err := e.Repo.GetTask(ctx, t.ID); err != nil {
		e.logger().Printf("create task %s: reload: %v", t.ID, err)
	} else {
		t = reloaded
	}
	out.Value = t

	_, err = e.Emit(ctx, NotifyOptions{
		Role:    domain.RoleBrigade,
		Title:   "Nouvelle tâche",
		Message: "Une nouvelle tâche vous a été assignée : " + t.Title,
		Payload: domain.Payload{TaskID: t.ID, RedirectTo: "/brigade/taches/" + t.ID},
		ActorID: opts.ActorID,
	})
	if err != nil {
		e.logger().Printf("create task %s: notification skipped: %v", t.ID, err)
		e.recordNotificationFailure(ctx, "task", t.ID, opts.ActorID, err)
		out.warn(err)
	}
	return out, nil
}

func (e Engine) ensureMaterials(ctx context.Context, tx *sql.Tx, ms []domain.TaskMaterial) error {
	for _, m := range ms {
		if _, err := e.Repo.GetMaterialTx(ctx, tx, m.MaterialID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalid("materials", "unknown material %s", m.MaterialID)
			}
			return err
		}
	}
	return nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left as is;
// a non-nil empty slice clears the list.
type TaskUpdateOptions struct {
	ID           string
	Title        *string
	Description  *string
	PlannedStart *string
	PlannedEnd   *string
	Status       *string
	BrigadeID    *string
	Employees    []string
	Materials    []domain.TaskMaterial
	ActorID      string
}

// UpdateTask overwrites the given fields. Any status may follow any other.
// It reports false when the task does not exist.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (bool, error) {
	var status domain.TaskStatus
	if opts.Status != nil {
		s, err := domain.ParseTaskStatus(*opts.Status)
		if err != nil {
			return false, invalid("status", "%v", err)
		}
		status = s
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return false, invalid("title", "must not be empty")
	}
	for field, v := range map[string]*string{"planned_start": opts.PlannedStart, "planned_end": opts.PlannedEnd} {
		if v != nil && *v != "" {
			if _, err := parseDate(field, *v); err != nil {
				return false, err
			}
		}
	}
	if err := validateMaterials(opts.Materials); err != nil {
		return false, err
	}

	found := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		found = true
		original := t
		if opts.Title != nil {
			t.Title = strings.TrimSpace(*opts.Title)
		}
		if opts.Description != nil {
			t.Description = *opts.Description
		}
		if opts.PlannedStart != nil {
			t.PlannedStart = *opts.PlannedStart
		}
		if opts.PlannedEnd != nil {
			t.PlannedEnd = *opts.PlannedEnd
		}
		if err := checkRange("planned", t.PlannedStart, t.PlannedEnd); err != nil {
			return err
		}
		if opts.BrigadeID != nil {
			t.BrigadeID = optionalString(*opts.BrigadeID)
		}
		if status != "" {
			t.Status = status
		}
		t.ActualEnd = e.actualEnd(original, t)
		t.UpdatedAt = e.stamp()
		if _, err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		if opts.Employees != nil {
			if err := e.Repo.ReplaceTaskEmployees(ctx, tx, t.ID, opts.Employees); err != nil {
				return err
			}
		}
		if opts.Materials != nil {
			if err := e.ensureMaterials(ctx, tx, opts.Materials); err != nil {
				return err
			}
			if err := e.Repo.ReplaceTaskMaterials(ctx, tx, t.ID, opts.Materials); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.TaskUpdated, "task", t.ID, opts.ActorID, events.EventPayload{
			"from_status": string(original.Status),
			"to_status":   string(t.Status),
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// actualEnd is stamped only when a task becomes completed after its planned
// end; it is kept while the task stays completed and cleared otherwise.
func (e Engine) actualEnd(before, after domain.Task) *string {
	if after.Status != domain.TaskCompleted {
		return nil
	}
	if before.Status == domain.TaskCompleted {
		return before.ActualEnd
	}
	today := e.today()
	if after.PlannedEnd != "" && today > after.PlannedEnd {
		return &today
	}
	return nil
}

// DeleteTask removes the task with its phases, reports, photos and material
// requests. Notifications are kept.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) (bool, error) {
	var reportIDs []string
	found := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ids, err := e.Repo.ReportIDsForTask(ctx, tx, id)
		if err != nil {
			return err
		}
		ok, err := e.Repo.DeleteTask(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		found, reportIDs = true, ids
		return e.Events.Append(ctx, tx, events.TaskDeleted, "task", id, actorID, events.EventPayload{"reports": len(ids)})
	})
	if err != nil {
		return false, err
	}
	for _, rid := range reportIDs {
		if err := e.Blobs.RemoveReport(rid); err != nil {
			e.logger().Printf("delete task %s: photos of %s: %v", id, rid, err)
		}
	}
	return found, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// Progress is the done/total phase fraction of a task.
func (e Engine) Progress(ctx context.Context, taskID string) (domain.TaskProgress, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskProgress{}, err
	}
	return domain.Progress(t.ID, t.Phases), nil
}
