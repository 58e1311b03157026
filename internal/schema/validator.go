// Package schema validates events before they leave the service.
package schema

import (
	"errors"
	"fmt"

	"ai-doll-conversation-service/internal/models"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

var turnStatuses = map[string]bool{
	"ok":                  true,
	"invalid_request":     true,
	"too_large":           true,
	"service_unavailable": true,
	"internal_error":      true,
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateTurn checks the fields consumers of the turn topics rely on.
func (v *Validator) ValidateTurn(e models.TurnEvent) error {
	switch {
	case e.EventType != models.EventTypeTurnCompleted && e.EventType != models.EventTypeTurnFailed:
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, e.EventType)
	case e.TurnID == "":
		return fmt.Errorf("%w: turnId is required", ErrInvalidEvent)
	case e.ChildID == "":
		return fmt.Errorf("%w: childId is required", ErrInvalidEvent)
	case !turnStatuses[e.Status]:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	case e.Timestamp <= 0:
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	case e.LatencyMs < 0:
		return fmt.Errorf("%w: negative latency", ErrInvalidEvent)
	}

	if e.EventType == models.EventTypeTurnCompleted {
		if e.Status != "ok" {
			return fmt.Errorf("%w: completed turn with status %q", ErrInvalidEvent, e.Status)
		}
		// A silent turn has nothing to remember.
		if e.MemoryID == "" && e.UserText != "" {
			return fmt.Errorf("%w: completed turn without memoryId", ErrInvalidEvent)
		}
	} else if e.Status == "ok" {
		return fmt.Errorf("%w: failed turn with status ok", ErrInvalidEvent)
	}
	return nil
}
