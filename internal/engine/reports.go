package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/ident"
	"fieldline/internal/repo"
)

type ReportSubmitOptions struct {
	PhaseID     string
	Description string
	ReportDate  string
	Advancement int
	Photos      []domain.PhotoUpload
	ActorID     string
}

func checkAdvancement(v int) error {
	if v < 0 || v > 100 {
		return invalid("advancement", "must be between 0 and 100, got %d", v)
	}
	return nil
}

func checkPhotos(photos []domain.PhotoUpload) error {
	for i, ph := range photos {
		if len(ph.Data) == 0 {
			return invalid("photos", "photo %d is empty", i+1)
		}
	}
	return nil
}

// SubmitReport records a pending report against a phase. The phase status is
// not checked.
func (e Engine) SubmitReport(ctx context.Context, opts ReportSubmitOptions) (domain.Report, error) {
	if strings.TrimSpace(opts.PhaseID) == "" {
		return domain.Report{}, invalid("phase_id", "required")
	}
	if err := checkAdvancement(opts.Advancement); err != nil {
		return domain.Report{}, err
	}
	if opts.ReportDate != "" {
		if _, err := parseDate("report_date", opts.ReportDate); err != nil {
			return domain.Report{}, err
		}
	}
	if err := checkPhotos(opts.Photos); err != nil {
		return domain.Report{}, err
	}
	var rep domain.Report
	err := ident.Retry(ctx, e.attempts(), func() (err error) {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := e.Repo.GetPhaseTx(ctx, tx, opts.PhaseID); err != nil {
			return err
		}
		id, err := e.alloc().Next(ctx, tx, ident.Report)
		if err != nil {
			return err
		}
		now := e.stamp()
		rep = domain.Report{
			ID:          id,
			PhaseID:     opts.PhaseID,
			Description: opts.Description,
			ReportDate:  opts.ReportDate,
			Advancement: opts.Advancement,
			Validation:  domain.ValidationPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if rep.ReportDate == "" {
			rep.ReportDate = e.today()
		}
		if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
			return err
		}
		photos, written, err := e.storePhotos(rep.ID, opts.Photos)
		defer func() {
			if err != nil {
				e.discard(rep.ID, written)
			}
		}()
		if err != nil {
			return err
		}
		if err := e.Repo.ReplacePhotos(ctx, tx, rep.ID, photos); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.ReportSubmitted, "report", rep.ID, opts.ActorID, events.EventPayload{
			"phase_id":    rep.PhaseID,
			"advancement": rep.Advancement,
			"photos":      len(photos),
		}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		rep.Photos = photos
		return nil
	})
	if err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

// storePhotos writes the batch to the blob store and returns photo rows in
// upload order together with the names written so far.
func (e Engine) storePhotos(reportID string, uploads []domain.PhotoUpload) ([]domain.Photo, []string, error) {
	photos := make([]domain.Photo, 0, len(uploads))
	written := make([]string, 0, len(uploads))
	for i, up := range uploads {
		name, err := e.Blobs.Put(reportID, up.Name, up.Data)
		if err != nil {
			return nil, written, err
		}
		written = append(written, name)
		photos = append(photos, domain.Photo{ID: uuid.NewString(), ReportID: reportID, Filename: name, Order: i})
	}
	return photos, written, nil
}

func (e Engine) discard(reportID string, names []string) {
	if len(names) == 0 {
		return
	}
	if err := e.Blobs.Remove(reportID, names...); err != nil {
		e.logger().Printf("report %s: discard photos: %v", reportID, err)
	}
}

type ReportUpdateOptions struct {
	ID          string
	Description *string
	Advancement *int
	// Photos replaces the whole photo set when non-nil.
	Photos  []domain.PhotoUpload
	ActorID string
}

// UpdateReport edits a report's content. It reports false when the report
// does not exist.
func (e Engine) UpdateReport(ctx context.Context, opts ReportUpdateOptions) (bool, error) {
	if opts.Advancement != nil {
		if err := checkAdvancement(*opts.Advancement); err != nil {
			return false, err
		}
	}
	if err := checkPhotos(opts.Photos); err != nil {
		return false, err
	}
	found := false
	var keep []string
	err := func() (err error) {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		rep, err := e.Repo.GetReportTx(ctx, tx, opts.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		found = true
		if opts.Description != nil {
			rep.Description = *opts.Description
		}
		if opts.Advancement != nil {
			rep.Advancement = *opts.Advancement
		}
		rep.UpdatedAt = e.stamp()
		if _, err := e.Repo.UpdateReportContent(ctx, tx, rep); err != nil {
			return err
		}
		if opts.Photos != nil {
			var photos []domain.Photo
			var written []string
			photos, written, err = e.storePhotos(rep.ID, opts.Photos)
			defer func() {
				if err != nil {
					e.discard(rep.ID, written)
				}
			}()
			if err != nil {
				return err
			}
			if err = e.Repo.ReplacePhotos(ctx, tx, rep.ID, photos); err != nil {
				return err
			}
			keep = written
		}
		if err = e.Events.Append(ctx, tx, events.ReportUpdated, "report", rep.ID, opts.ActorID, events.EventPayload{
			"advancement":     rep.Advancement,
			"photos_replaced": opts.Photos != nil,
		}); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		return false, err
	}
	if found && opts.Photos != nil {
		if err := e.Blobs.Prune(opts.ID, keep); err != nil {
			e.logger().Printf("update report %s: prune photos: %v", opts.ID, err)
		}
	}
	return found, nil
}

type JudgeOptions struct {
	ID         string
	Validation string
	Comment    *string
	ActorID    string
}

// JudgeReport records the supervisor's verdict on a pending report. The
// verdict may be a code or a French label, and may be left empty. An empty or
// pending verdict keeps the report pending and only stores the comment.
// Approved and needs_revision are terminal. It reports false when the report
// does not exist.
func (e Engine) JudgeReport(ctx context.Context, opts JudgeOptions) (bool, error) {
	v := domain.ValidationPending
	if strings.TrimSpace(opts.Validation) != "" {
		parsed, err := domain.ParseValidation(opts.Validation)
		if err != nil {
			return false, invalid("validation", "%v", err)
		}
		v = parsed
	}
	found := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		rep, err := e.Repo.GetReportTx(ctx, tx, opts.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		found = true
		if rep.Validation != domain.ValidationPending {
			return invalid("validation", "report %s is already %s", rep.ID, rep.Validation)
		}
		if v == domain.ValidationPending {
			if opts.Comment == nil {
				return nil
			}
			if _, err := e.Repo.SetComment(ctx, tx, rep.ID, opts.Comment, e.stamp()); err != nil {
				return err
			}
			return e.Events.Append(ctx, tx, events.ReportUpdated, "report", rep.ID, opts.ActorID, events.EventPayload{
				"comment": true,
			})
		}
		if _, err := e.Repo.SetValidation(ctx, tx, rep.ID, v, opts.Comment, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ReportJudged, "report", rep.ID, opts.ActorID, events.EventPayload{
			"validation": string(v),
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (e Engine) DeleteReport(ctx context.Context, id, actorID string) (bool, error) {
	found := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := e.Repo.DeleteReport(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		found = true
		return e.Events.Append(ctx, tx, events.ReportDeleted, "report", id, actorID, nil)
	})
	if err != nil {
		return false, err
	}
	if found {
		if err := e.Blobs.RemoveReport(id); err != nil {
			e.logger().Printf("delete report %s: photos: %v", id, err)
		}
	}
	return found, nil
}

func (e Engine) GetReport(ctx context.Context, id string) (domain.Report, error) {
	return e.Repo.GetReport(ctx, id)
}

func (e Engine) ListReports(ctx context.Context, f repo.ReportFilters) ([]domain.Report, error) {
	return e.Repo.ListReports(ctx, f)
}

// PhotoBytes returns a stored photo after checking it belongs to the report.
func (e Engine) PhotoBytes(ctx context.Context, reportID, filename string) ([]byte, error) {
	photos, err := e.Repo.ListPhotos(ctx, reportID)
	if err != nil {
		return nil, err
	}
	for _, ph := range photos {
		if ph.Filename == filename {
			return e.Blobs.Read(reportID, filename)
		}
	}
	return nil, repo.ErrNotFound
}
