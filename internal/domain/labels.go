package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownValue is wrapped by every codec failure below.
var ErrUnknownValue = errors.New("unknown value")

type Role string

const (
	RoleSection Role = "chef_section"
	RoleBrigade Role = "chef_brigade"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSection, RoleBrigade:
		return Role(s), nil
	}
	return "", fmt.Errorf("role %q: %w", s, ErrUnknownValue)
}

// TaskStatus codes. Storage holds the French labels.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskPaused     TaskStatus = "paused"
)

var TaskStatuses = []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskPaused}

func (s TaskStatus) Label() (string, error) {
	switch s {
	case TaskPending:
		return "En attente", nil
	case TaskInProgress:
		return "En cours", nil
	case TaskCompleted:
		return "Terminé", nil
	case TaskPaused:
		return "En pause", nil
	}
	return "", fmt.Errorf("task status %q: %w", string(s), ErrUnknownValue)
}

func TaskStatusFromLabel(label string) (TaskStatus, error) {
	switch label {
	case "En attente":
		return TaskPending, nil
	case "En cours":
		return TaskInProgress, nil
	case "Terminé":
		return TaskCompleted, nil
	case "En pause":
		return TaskPaused, nil
	}
	return "", fmt.Errorf("task status label %q: %w", label, ErrUnknownValue)
}

// ParseTaskStatus accepts either a code or a label.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if _, err := TaskStatus(s).Label(); err == nil {
		return TaskStatus(s), nil
	}
	return TaskStatusFromLabel(s)
}

type PhaseStatus string

const (
	PhaseWaiting    PhaseStatus = "waiting"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseDone       PhaseStatus = "done"
)

var PhaseStatuses = []PhaseStatus{PhaseWaiting, PhaseInProgress, PhaseDone}

func (s PhaseStatus) Label() (string, error) {
	switch s {
	case PhaseWaiting:
		return "En attente", nil
	case PhaseInProgress:
		return "En cours", nil
	case PhaseDone:
		return "Terminé", nil
	}
	return "", fmt.Errorf("phase status %q: %w", string(s), ErrUnknownValue)
}

func PhaseStatusFromLabel(label string) (PhaseStatus, error) {
	switch label {
	case "En attente":
		return PhaseWaiting, nil
	case "En cours":
		return PhaseInProgress, nil
	case "Terminé":
		return PhaseDone, nil
	}
	return "", fmt.Errorf("phase status label %q: %w", label, ErrUnknownValue)
}

// rank orders phase statuses along the only allowed direction.
func (s PhaseStatus) rank() int {
	switch s {
	case PhaseWaiting:
		return 0
	case PhaseInProgress:
		return 1
	case PhaseDone:
		return 2
	}
	return -1
}

// CanAdvance reports whether a phase may move from s to next.
func (s PhaseStatus) CanAdvance(next PhaseStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

type Validation string

const (
	ValidationPending       Validation = "pending"
	ValidationNeedsRevision Validation = "needs_revision"
	ValidationApproved      Validation = "approved"
)

var Validations = []Validation{ValidationPending, ValidationNeedsRevision, ValidationApproved}

func (v Validation) Label() (string, error) {
	switch v {
	case ValidationPending:
		return "En attente", nil
	case ValidationNeedsRevision:
		return "À réviser", nil
	case ValidationApproved:
		return "Approuvé", nil
	}
	return "", fmt.Errorf("validation %q: %w", string(v), ErrUnknownValue)
}

func ValidationFromLabel(label string) (Validation, error) {
	switch label {
	case "En attente":
		return ValidationPending, nil
	case "À réviser":
		return ValidationNeedsRevision, nil
	case "Approuvé":
		return ValidationApproved, nil
	}
	return "", fmt.Errorf("validation label %q: %w", label, ErrUnknownValue)
}

// ParseValidation accepts either a code or a label.
func ParseValidation(s string) (Validation, error) {
	if _, err := Validation(s).Label(); err == nil {
		return Validation(s), nil
	}
	return ValidationFromLabel(s)
}
