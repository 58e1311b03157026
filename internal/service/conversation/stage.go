package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// Stage is the furthest point a turn reached.
type Stage int

const (
	// StageReceived - Request accepted, nothing checked yet.
	StageReceived Stage = iota
	StageAuthenticated
	StageTranscribed
	StageRecalled
	StageGenerated
	StagePersisted
	StageSynthesized
	// StageStreamed - Reply audio handed to the transport. Terminal.
	StageStreamed
	// StageAborted - Turn stopped before streaming a reply. Terminal.
	StageAborted
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "RECEIVED"
	case StageAuthenticated:
		return "AUTHENTICATED"
	case StageTranscribed:
		return "TRANSCRIBED"
	case StageRecalled:
		return "RECALLED"
	case StageGenerated:
		return "GENERATED"
	case StagePersisted:
		return "PERSISTED"
	case StageSynthesized:
		return "SYNTHESIZED"
	case StageStreamed:
		return "STREAMED"
	case StageAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for STREAMED and ABORTED.
func (s Stage) IsTerminal() bool {
	return s == StageStreamed || s == StageAborted
}

// Errors for invalid stage transitions.
var (
	ErrTurnFinished = errors.New("turn already finished")
	ErrOutOfOrder   = errors.New("stage out of order")
)

// Tracker records the progress of one turn through the pipeline.
// Thread-safe for concurrent access.
//
// Stage transitions:
//
//	RECEIVED → AUTHENTICATED → TRANSCRIBED → RECALLED → GENERATED
//	    → PERSISTED → SYNTHESIZED → STREAMED
//	any non-terminal stage ──→ Abort() ──→ ABORTED
//
// Advance only accepts the immediate successor, so no stage can be skipped
// or repeated.
type Tracker struct {
	mu      sync.RWMutex
	turnID  string
	stage   Stage
	reached Stage // last stage before an abort
}

// NewTracker creates a tracker in RECEIVED.
func NewTracker(turnID string) *Tracker {
	return &Tracker{turnID: turnID, stage: StageReceived}
}

// TurnID returns the turn ID.
func (t *Tracker) TurnID() string {
	return t.turnID
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stage
}

// Reached returns the furthest non-terminal progress, which survives an abort.
func (t *Tracker) Reached() Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stage == StageAborted {
		return t.reached
	}
	return t.stage
}

// Advance moves to next, which must directly follow the current stage.
func (t *Tracker) Advance(next Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stage.IsTerminal() {
		return ErrTurnFinished
	}
	if next != t.stage+1 || next == StageAborted {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, next, t.stage)
	}
	t.stage = next
	return nil
}

// Abort ends the turn without a reply. Returns false if already terminal.
func (t *Tracker) Abort() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage.IsTerminal() {
		return false
	}
	t.reached = t.stage
	t.stage = StageAborted
	return true
}
