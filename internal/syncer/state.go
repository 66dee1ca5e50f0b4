package syncer

import "time"

// State is the coordinator's process-wide, non-persisted sync status.
type State string

// Coordinator states.
const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StatePartial State = "partial"
	StateError   State = "error"
	StateOffline State = "offline"
)

// Trigger names what started a drain pass.
type Trigger string

// Pass triggers.
const (
	TriggerConnectivity Trigger = "connectivity"
	TriggerManual       Trigger = "manual"
	TriggerBackground   Trigger = "background"
	TriggerPeriodic     Trigger = "periodic"
)

// Result summarizes one drain pass.
type Result struct {
	Trigger   Trigger       `json:"trigger"`
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Remaining int           `json:"remaining"`
	State     State         `json:"state"`
	Duration  time.Duration `json:"duration"`
}

// Status is a point-in-time view for UI collaborators.
type Status struct {
	State     State     `json:"state"`
	Online    bool      `json:"online"`
	Pending   int       `json:"pending"`
	LastRun   *Result   `json:"last_run,omitempty"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
}

// terminalState picks the end-of-pass state from the tally.
func terminalState(delivered, failed int) State {
	switch {
	case delivered == 0 && failed == 0:
		return StateIdle
	case failed == 0:
		return StateSuccess
	case delivered == 0:
		return StateError
	default:
		return StatePartial
	}
}
