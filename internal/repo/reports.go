package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldline/internal/domain"
)

const reportColumns = `r.id,r.phase_id,r.description,r.report_date,r.advancement,r.validation,r.comment,r.created_at,r.updated_at`

func scanReport(row rowScanner) (domain.Report, error) {
	var rep domain.Report
	var label string
	var comment sql.NullString
	if err := row.Scan(&rep.ID, &rep.PhaseID, &rep.Description, &rep.ReportDate, &rep.Advancement,
		&label, &comment, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return rep, ErrNotFound
		}
		return rep, err
	}
	v, err := domain.ValidationFromLabel(label)
	if err != nil {
		return rep, fmt.Errorf("report %s: %w", rep.ID, err)
	}
	rep.Validation = v
	rep.Comment = stringPtr(comment)
	return rep, nil
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	label, err := rep.Validation.Label()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(id,phase_id,description,report_date,advancement,validation,comment,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.PhaseID, rep.Description, rep.ReportDate, rep.Advancement, label, nullableStringPtr(rep.Comment), rep.CreatedAt, rep.UpdatedAt)
	return err
}

// UpdateReportContent rewrites the brigade-editable columns.
func (r Repo) UpdateReportContent(ctx context.Context, tx *sql.Tx, rep domain.Report) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET description=?, advancement=?, updated_at=? WHERE id=?`,
		rep.Description, rep.Advancement, rep.UpdatedAt, rep.ID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetValidation stores a judgement and the reviewer comment verbatim.
func (r Repo) SetValidation(ctx context.Context, tx *sql.Tx, id string, v domain.Validation, comment *string, updatedAt string) (bool, error) {
	label, err := v.Label()
	if err != nil {
		return false, err
	}
	var c any
	if comment != nil {
		c = *comment
	}
	res, err := tx.ExecContext(ctx, `UPDATE reports SET validation=?, comment=?, updated_at=? WHERE id=?`, label, c, updatedAt, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetComment replaces the supervisor comment without touching the verdict.
func (r Repo) SetComment(ctx context.Context, tx *sql.Tx, id string, comment *string, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET comment=?, updated_at=? WHERE id=?`, nullableStringPtr(comment), updatedAt, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) DeleteReport(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// GetReport loads a report with its photos in display order.
func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	return getReport(ctx, r.DB, id)
}

func (r Repo) GetReportTx(ctx context.Context, tx *sql.Tx, id string) (domain.Report, error) {
	return getReport(ctx, tx, id)
}

func getReport(ctx context.Context, q queryer, id string) (domain.Report, error) {
	rep, err := scanReport(q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports r WHERE r.id=?`, id))
	if err != nil {
		return rep, err
	}
	rep.Photos, err = listPhotos(ctx, q, rep.ID)
	return rep, err
}

type ReportFilters struct {
	PhaseID    string
	TaskID     string
	Validation domain.Validation
	Limit      int
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.Report, error) {
	var clauses []string
	var args []any
	from := `reports r`
	if f.TaskID != "" {
		from = `reports r JOIN phases p ON p.id = r.phase_id`
		clauses = append(clauses, "p.task_id=?")
		args = append(args, f.TaskID)
	}
	if f.PhaseID != "" {
		clauses = append(clauses, "r.phase_id=?")
		args = append(args, f.PhaseID)
	}
	if f.Validation != "" {
		label, err := f.Validation.Label()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "r.validation=?")
		args = append(args, label)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + reportColumns + ` FROM ` + from + ` ` + where + ` ORDER BY r.created_at DESC, r.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// ReportIDsForTask lists every report attached to any phase of the task.
func (r Repo) ReportIDsForTask(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT r.id FROM reports r JOIN phases p ON p.id = r.phase_id WHERE p.task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplacePhotos deletes every photo row of the report and inserts the batch
// with display order 0..n-1.
func (r Repo) ReplacePhotos(ctx context.Context, tx *sql.Tx, reportID string, photos []domain.Photo) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE report_id=?`, reportID); err != nil {
		return err
	}
	for i, ph := range photos {
		if _, err := tx.ExecContext(ctx, `INSERT INTO photos(id,report_id,filename,display_order) VALUES (?,?,?,?)`,
			ph.ID, reportID, ph.Filename, i); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListPhotos(ctx context.Context, reportID string) ([]domain.Photo, error) {
	return listPhotos(ctx, r.DB, reportID)
}

func listPhotos(ctx context.Context, q queryer, reportID string) ([]domain.Photo, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,report_id,filename,display_order FROM photos WHERE report_id=? ORDER BY display_order ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Photo
	for rows.Next() {
		var ph domain.Photo
		if err := rows.Scan(&ph.ID, &ph.ReportID, &ph.Filename, &ph.Order); err != nil {
			return nil, err
		}
		res = append(res, ph)
	}
	return res, rows.Err()
}
