package repo

import (
	"context"
	"database/sql"
	"fmt"

	"fieldline/internal/domain"
)

func (r Repo) InsertMaterial(ctx context.Context, tx *sql.Tx, m domain.Material) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO materials(id,name,unit,stock,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Name, nullable(m.Unit), m.Stock, m.CreatedAt)
	return err
}

func scanMaterial(row rowScanner) (domain.Material, error) {
	var m domain.Material
	var unit sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &unit, &m.Stock, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return m, ErrNotFound
		}
		return m, classify(err)
	}
	m.Unit = unit.String
	return m, nil
}

func (r Repo) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	return scanMaterial(r.DB.QueryRowContext(ctx, `SELECT id,name,unit,stock,created_at FROM materials WHERE id=?`, id))
}

func (r Repo) GetMaterialTx(ctx context.Context, tx *sql.Tx, id string) (domain.Material, error) {
	return scanMaterial(tx.QueryRowContext(ctx, `SELECT id,name,unit,stock,created_at FROM materials WHERE id=?`, id))
}

// MaterialByNameTx resolves a catalog entry by exact name.
func (r Repo) MaterialByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Material, error) {
	return scanMaterial(tx.QueryRowContext(ctx, `SELECT id,name,unit,stock,created_at FROM materials WHERE name=?`, name))
}

func (r Repo) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,unit,stock,created_at FROM materials ORDER BY name ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// InsertMaterialRequest writes the request header. A missing table surfaces
// as ErrStorageUnavailable.
func (r Repo) InsertMaterialRequest(ctx context.Context, tx *sql.Tx, req domain.MaterialRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO material_requests(id,task_id,status,created_at) VALUES (?,?,?,?)`,
		req.ID, req.TaskID, req.Status, req.CreatedAt)
	return classify(err)
}

func (r Repo) InsertMaterialRequestLine(ctx context.Context, tx *sql.Tx, lineNo int, line domain.MaterialLine) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO material_request_lines(request_id,line_no,material_id,quantity) VALUES (?,?,?,?)`,
		line.RequestID, lineNo, line.MaterialID, line.Quantity)
	return classify(err)
}

type MaterialRequestFilters struct {
	TaskID string
	Limit  int
}

func (r Repo) ListMaterialRequests(ctx context.Context, f MaterialRequestFilters) ([]domain.MaterialRequest, error) {
	query := `SELECT id,task_id,status,created_at FROM material_requests`
	var args []any
	if f.TaskID != "" {
		query += ` WHERE task_id=?`
		args = append(args, f.TaskID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	var res []domain.MaterialRequest
	for rows.Next() {
		var req domain.MaterialRequest
		if err := rows.Scan(&req.ID, &req.TaskID, &req.Status, &req.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		lines, err := r.listRequestLines(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Lines = lines
	}
	return res, nil
}

func (r Repo) GetMaterialRequest(ctx context.Context, id string) (domain.MaterialRequest, error) {
	var req domain.MaterialRequest
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,status,created_at FROM material_requests WHERE id=?`, id).
		Scan(&req.ID, &req.TaskID, &req.Status, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, classify(err)
	}
	req.Lines, err = r.listRequestLines(ctx, req.ID)
	return req, err
}

func (r Repo) listRequestLines(ctx context.Context, requestID string) ([]domain.MaterialLine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT l.request_id,l.material_id,m.name,l.quantity
FROM material_request_lines l JOIN materials m ON m.id = l.material_id
WHERE l.request_id=? ORDER BY l.line_no ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("request %s lines: %w", requestID, classify(err))
	}
	defer rows.Close()
	var res []domain.MaterialLine
	for rows.Next() {
		var l domain.MaterialLine
		if err := rows.Scan(&l.RequestID, &l.MaterialID, &l.Name, &l.Quantity); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
