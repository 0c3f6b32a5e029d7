package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldline/internal/domain"
)

const taskColumns = `id,title,description,planned_start,planned_end,actual_end,status,brigade_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var description, plannedStart, plannedEnd, actualEnd, brigade sql.NullString
	var label string
	if err := row.Scan(&t.ID, &t.Title, &description, &plannedStart, &plannedEnd, &actualEnd, &label, &brigade, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return t, ErrNotFound
		}
		return t, err
	}
	status, err := domain.TaskStatusFromLabel(label)
	if err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = status
	t.Description = description.String
	t.PlannedStart = plannedStart.String
	t.PlannedEnd = plannedEnd.String
	t.ActualEnd = stringPtr(actualEnd)
	t.BrigadeID = stringPtr(brigade)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	label, err := t.Status.Label()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), nullable(t.PlannedStart), nullable(t.PlannedEnd), nullableStringPtr(t.ActualEnd),
		label, nullableStringPtr(t.BrigadeID), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask overwrites every mutable column. It reports false when no row matched.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) (bool, error) {
	label, err := t.Status.Label()
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, planned_start=?, planned_end=?, actual_end=?, status=?, brigade_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullable(t.PlannedStart), nullable(t.PlannedEnd), nullableStringPtr(t.ActualEnd),
		label, nullableStringPtr(t.BrigadeID), t.UpdatedAt, t.ID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// GetTask loads a task with its phases, employees and materials.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

func (r Repo) getTask(ctx context.Context, q queryer, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	if t.Phases, err = listPhases(ctx, q, t.ID); err != nil {
		return t, err
	}
	if t.Employees, err = listTaskEmployees(ctx, q, t.ID); err != nil {
		return t, err
	}
	// The material list is optional on a task; without its table the task
	// is returned bare.
	if t.Materials, err = listTaskMaterials(ctx, q, t.ID); err != nil && !errors.Is(err, ErrStorageUnavailable) {
		return t, err
	}
	return t, nil
}

type TaskFilters struct {
	Status          domain.TaskStatus
	BrigadeID       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListTasks returns task rows newest first. Phases are not loaded.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		label, err := f.Status.Label()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "status=?")
		args = append(args, label)
	}
	if f.BrigadeID != "" {
		clauses = append(clauses, "brigade_id=?")
		args = append(args, f.BrigadeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ReplaceTaskEmployees swaps the whole assignment list.
func (r Repo) ReplaceTaskEmployees(ctx context.Context, tx *sql.Tx, taskID string, employees []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_employees WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, emp := range employees {
		if strings.TrimSpace(emp) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_employees(task_id,employee_id) VALUES (?,?)`, taskID, emp); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceTaskMaterials swaps the whole material list. Repeated material ids are summed.
func (r Repo) ReplaceTaskMaterials(ctx context.Context, tx *sql.Tx, taskID string, materials []domain.TaskMaterial) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_materials WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, m := range materials {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_materials(task_id,material_id,quantity) VALUES (?,?,?)
ON CONFLICT(task_id,material_id) DO UPDATE SET quantity=quantity+excluded.quantity`, taskID, m.MaterialID, m.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func listTaskEmployees(ctx context.Context, q queryer, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT employee_id FROM task_employees WHERE task_id=? ORDER BY employee_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var emp string
		if err := rows.Scan(&emp); err != nil {
			return nil, err
		}
		res = append(res, emp)
	}
	return res, rows.Err()
}

func listTaskMaterials(ctx context.Context, q queryer, taskID string) ([]domain.TaskMaterial, error) {
	rows, err := q.QueryContext(ctx, `SELECT material_id,quantity FROM task_materials WHERE task_id=? ORDER BY material_id`, taskID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.TaskMaterial
	for rows.Next() {
		var m domain.TaskMaterial
		if err := rows.Scan(&m.MaterialID, &m.Quantity); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
