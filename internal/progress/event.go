package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which sync milestone an Event represents.
type Stage string

// Supported stages.
const (
	StagePassStart      Stage = "PASS_START"
	StagePassDone       Stage = "PASS_DONE"
	StageDeliveryOK     Stage = "DELIVERY_OK"
	StageDeliveryFailed Stage = "DELIVERY_FAILED"
	StageStateChange    Stage = "STATE_CHANGE"
)

// Event is one sync milestone.
type Event struct {
	// RunID identifies the drain pass. State changes outside a pass leave it zero.
	RunID [16]byte
	// TS is the UTC time the emitter observed the milestone.
	TS time.Time
	// Stage says what happened.
	Stage Stage
	// Trigger names what started the pass (connectivity, manual, background, periodic).
	Trigger string
	// EntryID is the outbox id for delivery events.
	EntryID int64
	// State is the coordinator state after a pass or state change.
	State string
	// Attempted, Delivered, Failed and Remaining summarize a finished pass.
	Attempted int
	Delivered int
	Failed    int
	Remaining int
	// Dur is the delivery or pass latency.
	Dur time.Duration
	// Note carries low-volume context such as an error string.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePassStart:
		if e.RunID == [16]byte{} {
			return errors.New("pass start requires run id")
		}
	case StagePassDone:
		if e.RunID == [16]byte{} {
			return errors.New("pass done requires run id")
		}
		if e.State == "" {
			return errors.New("pass done requires state")
		}
	case StageDeliveryOK, StageDeliveryFailed:
		if e.RunID == [16]byte{} {
			return errors.New("delivery event requires run id")
		}
		if e.EntryID <= 0 {
			return errors.New("delivery event requires entry id")
		}
	case StageStateChange:
		if e.State == "" {
			return errors.New("state change requires state")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns the run id as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
