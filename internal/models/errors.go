package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the service and HTTP layers.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidInput     = errors.New("invalid input")
)

// StatusError reports a status value that does not resolve to a stage.
type StatusError struct {
	Status string
	Scope  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %q is not a stage of %s", e.Status, e.Scope)
}

func (e *StatusError) Unwrap() error { return ErrInvalidStatus }

// StageInUseError blocks deletion of a stage that tasks still occupy or that
// open milestones hand off to.
type StageInUseError struct {
	StageID    string
	Count      int
	Milestones int
}

func (e *StageInUseError) Error() string {
	if e.Milestones > 0 {
		return fmt.Sprintf("stage %s is used by %d task(s) and %d open milestone handoff(s)", e.StageID, e.Count, e.Milestones)
	}
	return fmt.Sprintf("stage %s is used by %d task(s); move them first", e.StageID, e.Count)
}

func (e *StageInUseError) Unwrap() error { return ErrConflict }

// HandoffError reports a milestone handoff that failed partway. The
// milestone stays incomplete so the call can be retried.
type HandoffError struct {
	MilestoneID int64
	Succeeded   int
	Total       int
	Cause       error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("milestone %d handoff failed after %d of %d tasks: %v", e.MilestoneID, e.Succeeded, e.Total, e.Cause)
}

// Unwrap exposes both the conflict class and the underlying cause.
func (e *HandoffError) Unwrap() []error { return []error{ErrConflict, e.Cause} }

// NotFoundf builds an ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// InvalidInputf builds an ErrInvalidInput with context.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// InvalidOperationf builds an ErrInvalidOperation with context.
func InvalidOperationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidOperation)
}

// PermissionDeniedf builds an ErrPermissionDenied with context.
func PermissionDeniedf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPermissionDenied)
}
