package repo

import (
	"context"
	"database/sql"
	"fmt"

	"fieldline/internal/domain"
)

const phaseColumns = `id,task_id,ordre,name,description,duration_days,planned_start,planned_end,actual_start,actual_end,status`

func scanPhase(row rowScanner) (domain.Phase, error) {
	var p domain.Phase
	var description, plannedStart, plannedEnd, actualStart, actualEnd sql.NullString
	var label string
	if err := row.Scan(&p.ID, &p.TaskID, &p.Order, &p.Name, &description, &p.DurationDays,
		&plannedStart, &plannedEnd, &actualStart, &actualEnd, &label); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	status, err := domain.PhaseStatusFromLabel(label)
	if err != nil {
		return p, fmt.Errorf("phase %s: %w", p.ID, err)
	}
	p.Status = status
	p.Description = description.String
	p.PlannedStart = stringPtr(plannedStart)
	p.PlannedEnd = stringPtr(plannedEnd)
	p.ActualStart = stringPtr(actualStart)
	p.ActualEnd = stringPtr(actualEnd)
	return p, nil
}

func (r Repo) InsertPhase(ctx context.Context, tx *sql.Tx, p domain.Phase) error {
	label, err := p.Status.Label()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO phases(`+phaseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.Order, p.Name, nullable(p.Description), p.DurationDays,
		nullableStringPtr(p.PlannedStart), nullableStringPtr(p.PlannedEnd),
		nullableStringPtr(p.ActualStart), nullableStringPtr(p.ActualEnd), label)
	return err
}

func (r Repo) GetPhase(ctx context.Context, id string) (domain.Phase, error) {
	return scanPhase(r.DB.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id=?`, id))
}

func (r Repo) GetPhaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Phase, error) {
	return scanPhase(tx.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id=?`, id))
}

// ListPhases returns a task's phases by position.
func (r Repo) ListPhases(ctx context.Context, taskID string) ([]domain.Phase, error) {
	return listPhases(ctx, r.DB, taskID)
}

func listPhases(ctx context.Context, q queryer, taskID string) ([]domain.Phase, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE task_id=? ORDER BY ordre ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdatePhaseProgress writes status and actual dates.
func (r Repo) UpdatePhaseProgress(ctx context.Context, tx *sql.Tx, p domain.Phase) (bool, error) {
	label, err := p.Status.Label()
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE phases SET status=?, actual_start=?, actual_end=? WHERE id=?`,
		label, nullableStringPtr(p.ActualStart), nullableStringPtr(p.ActualEnd), p.ID)
	if err != nil {
		return false, err
	}
	return affected(res)
}
