package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the orchestrator.
const (
	TaskCreated           = "task.created"
	TaskUpdated           = "task.updated"
	TaskDeleted           = "task.deleted"
	PhaseStarted          = "phase.started"
	PhaseCompleted        = "phase.completed"
	ReportSubmitted       = "report.submitted"
	ReportUpdated         = "report.updated"
	ReportJudged          = "report.judged"
	ReportDeleted         = "report.deleted"
	MaterialAdded         = "material.added"
	MaterialsRequested    = "materials.requested"
	NotificationEmitted   = "notification.emitted"
	NotificationFailed    = "notification.failed"
	NotificationsMarkRead = "notification.read"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event in the caller's transaction so the audit row
// commits or rolls back with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "system"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
