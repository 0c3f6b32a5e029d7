package engine

import (
	"context"
	"database/sql"
	"errors"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// StartPhase moves a waiting phase to in progress.
func (e Engine) StartPhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.advancePhase(ctx, phaseID, domain.PhaseInProgress, actorID)
}

// CompletePhase marks a phase done. A waiting phase may be completed
// directly; both actual dates are then stamped.
func (e Engine) CompletePhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.advancePhase(ctx, phaseID, domain.PhaseDone, actorID)
}

func (e Engine) advancePhase(ctx context.Context, phaseID string, next domain.PhaseStatus, actorID string) (bool, error) {
	found := false
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetPhaseTx(ctx, tx, phaseID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		found = true
		if !p.Status.CanAdvance(next) {
			return invalid("status", "phase %s cannot go from %s to %s", p.ID, p.Status, next)
		}
		from := p.Status
		today := e.today()
		if p.ActualStart == nil {
			p.ActualStart = &today
		}
		if next == domain.PhaseDone {
			p.ActualEnd = &today
		}
		p.Status = next
		if _, err := e.Repo.UpdatePhaseProgress(ctx, tx, p); err != nil {
			return err
		}
		evt := events.PhaseStarted
		if next == domain.PhaseDone {
			evt = events.PhaseCompleted
		}
		return e.Events.Append(ctx, tx, evt, "phase", p.ID, actorID, events.EventPayload{
			"task_id": p.TaskID,
			"from":    string(from),
			"to":      string(next),
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (e Engine) GetPhase(ctx context.Context, id string) (domain.Phase, error) {
	return e.Repo.GetPhase(ctx, id)
}
