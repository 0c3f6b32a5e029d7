package server

import (
	"encoding/json"

	"fieldline/internal/domain"
	"fieldline/internal/notify"
)

// Request payloads

type PhaseRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DurationDays int    `json:"duration_days,omitempty" minimum:"0"`
	PlannedStart string `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   string `json:"planned_end,omitempty" format:"date"`
}

type CreateTaskRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	PlannedStart string                `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   string                `json:"planned_end,omitempty" format:"date"`
	Status       string                `json:"status,omitempty" doc:"Status code or French label"`
	BrigadeID    string                `json:"brigade_id,omitempty"`
	Employees    []string              `json:"employees,omitempty"`
	Materials    []domain.TaskMaterial `json:"materials,omitempty"`
	Phases       []PhaseRequest        `json:"phases,omitempty"`
}

type UpdateTaskRequest struct {
	Title        *string               `json:"title,omitempty"`
	Description  *string               `json:"description,omitempty"`
	PlannedStart *string               `json:"planned_start,omitempty"`
	PlannedEnd   *string               `json:"planned_end,omitempty"`
	Status       *string               `json:"status,omitempty" doc:"Status code or French label"`
	BrigadeID    *string               `json:"brigade_id,omitempty"`
	Employees    []string              `json:"employees,omitempty"`
	Materials    []domain.TaskMaterial `json:"materials,omitempty"`
}

type SubmitReportRequest struct {
	Description string               `json:"description"`
	ReportDate  string               `json:"report_date,omitempty" format:"date"`
	Advancement int                  `json:"advancement"`
	Photos      []domain.PhotoUpload `json:"photos,omitempty"`
}

type UpdateReportRequest struct {
	Description *string               `json:"description,omitempty"`
	Advancement *int                  `json:"advancement,omitempty"`
	Photos      *[]domain.PhotoUpload `json:"photos,omitempty" doc:"Replaces every photo when present"`
}

type JudgeReportRequest struct {
	Validation string  `json:"validation,omitempty" doc:"pending, needs_revision, approved or the French label; empty keeps the report pending"`
	Comment    *string `json:"comment,omitempty"`
}

type CreateMaterialRequest struct {
	Name  string `json:"name"`
	Unit  string `json:"unit,omitempty"`
	Stock int    `json:"stock,omitempty"`
}

type RequestMaterialsRequest struct {
	Materiels []domain.LineItem `json:"materiels"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"chef_section,chef_brigade"`
}

// Responses

type TaskResponse struct {
	domain.Task
	Progress *domain.TaskProgress `json:"progress,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

type NotificationResponse struct {
	domain.Notification
	Redirect string `json:"redirect"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type notificationWindow struct {
	Items  []NotificationResponse `json:"items"`
	Unread int                    `json:"unread"`
}

type notificationPage struct {
	Items      []NotificationResponse `json:"items"`
	NextCursor int64                  `json:"next_cursor"`
}

// Conversion helpers

func taskResponse(t domain.Task) TaskResponse {
	t.Employees = nonNilSlice(t.Employees)
	t.Materials = nonNilSlice(t.Materials)
	t.Phases = nonNilSlice(t.Phases)
	progress := domain.Progress(t.ID, t.Phases)
	return TaskResponse{Task: t, Progress: &progress}
}

// mapTasks leaves Progress unset; list rows carry no phases.
func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, TaskResponse{Task: t})
	}
	return out
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{Notification: n, Redirect: notify.RedirectURL(n.Role, n.Payload)}
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse(n))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
