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

type MaterialCreateOptions struct {
	Name    string
	Unit    string
	Stock   int
	ActorID string
}

// AddMaterial adds an entry to the catalog. Names are unique.
func (e Engine) AddMaterial(ctx context.Context, opts MaterialCreateOptions) (domain.Material, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Material{}, invalid("name", "required")
	}
	if opts.Stock < 0 {
		return domain.Material{}, invalid("stock", "must not be negative")
	}
	var m domain.Material
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.MaterialByNameTx(ctx, tx, name); err == nil {
			return invalid("name", "material %q already exists", name)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		id, err := e.alloc().Next(ctx, tx, ident.Material)
		if err != nil {
			return err
		}
		m = domain.Material{ID: id, Name: name, Unit: opts.Unit, Stock: opts.Stock, CreatedAt: e.stamp()}
		if err := e.Repo.InsertMaterial(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.MaterialAdded, "material", m.ID, opts.ActorID, events.EventPayload{"name": m.Name})
	})
	if err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

func (e Engine) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	return e.Repo.ListMaterials(ctx)
}

type MaterialRequestOptions struct {
	TaskID  string
	Lines   []domain.LineItem
	ActorID string
}

func (o MaterialRequestOptions) validate() error {
	if strings.TrimSpace(o.TaskID) == "" {
		return invalid("task_id", "required")
	}
	if len(o.Lines) == 0 {
		return invalid("materiels", "at least one line required")
	}
	for i, l := range o.Lines {
		if strings.TrimSpace(l.Name) == "" {
			return invalid("materiels", "line %d has no name", i+1)
		}
		if l.Quantity <= 0 {
			return invalid("materiels", "line %d quantity must be positive", i+1)
		}
	}
	return nil
}

// RequestMaterials records a brigade's material request and notifies the
// section in the same transaction. Request rows that cannot be stored because
// their tables are unavailable are skipped with a log line; a notification
// failure aborts everything and is returned as a *NotificationError.
func (e Engine) RequestMaterials(ctx context.Context, opts MaterialRequestOptions) (domain.MaterialRequest, error) {
	if err := opts.validate(); err != nil {
		return domain.MaterialRequest{}, err
	}
	var req domain.MaterialRequest
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID); err != nil {
			return err
		}
		id, err := e.alloc().Next(ctx, tx, ident.MaterialRequest)
		if err != nil {
			return err
		}
		req = domain.MaterialRequest{ID: id, TaskID: opts.TaskID, Status: "pending", CreatedAt: e.stamp()}
		if err := e.storeRequest(ctx, tx, &req, opts.Lines); err != nil {
			return err
		}
		if _, err := e.emitTx(ctx, tx, NotifyOptions{
			Role:    domain.RoleSection,
			Title:   "Demande de matériel",
			Message: "Tâche " + opts.TaskID + " : " + describeLines(opts.Lines),
			Payload: domain.Payload{
				RedirectTo: "/materiels",
				Filter:     "demandes",
				TaskID:     opts.TaskID,
				DemandeID:  req.ID,
				Materiels:  opts.Lines,
			},
			ActorID: opts.ActorID,
		}); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.MaterialsRequested, "material_request", req.ID, opts.ActorID, events.EventPayload{
			"task_id":  req.TaskID,
			"lines":    len(opts.Lines),
			"resolved": len(req.Lines),
		})
	})
	if err != nil {
		return domain.MaterialRequest{}, err
	}
	return req, nil
}

// storeRequest writes the request header and the lines that match a catalog
// name. Unavailable request or catalog tables are tolerated.
func (e Engine) storeRequest(ctx context.Context, tx *sql.Tx, req *domain.MaterialRequest, lines []domain.LineItem) error {
	if err := e.Repo.InsertMaterialRequest(ctx, tx, *req); err != nil {
		if errors.Is(err, repo.ErrStorageUnavailable) {
			e.logger().Printf("request materials %s: request not stored: %v", req.ID, err)
			return nil
		}
		return err
	}
	for i, l := range lines {
		m, err := e.Repo.MaterialByNameTx(ctx, tx, strings.TrimSpace(l.Name))
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				e.logger().Printf("request materials %s: no catalog entry for %q", req.ID, l.Name)
				continue
			}
			if errors.Is(err, repo.ErrStorageUnavailable) {
				e.logger().Printf("request materials %s: line %q dropped: %v", req.ID, l.Name, err)
				continue
			}
			return err
		}
		line := domain.MaterialLine{RequestID: req.ID, MaterialID: m.ID, Name: m.Name, Quantity: l.Quantity}
		if err := e.Repo.InsertMaterialRequestLine(ctx, tx, i+1, line); err != nil {
			if errors.Is(err, repo.ErrStorageUnavailable) {
				e.logger().Printf("request materials %s: lines not stored: %v", req.ID, err)
				return nil
			}
			return err
		}
		req.Lines = append(req.Lines, line)
	}
	return nil
}

func (e Engine) GetMaterialRequest(ctx context.Context, id string) (domain.MaterialRequest, error) {
	return e.Repo.GetMaterialRequest(ctx, id)
}

func (e Engine) ListMaterialRequests(ctx context.Context, f repo.MaterialRequestFilters) ([]domain.MaterialRequest, error) {
	return e.Repo.ListMaterialRequests(ctx, f)
}
