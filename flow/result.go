package flow

import "time"

// Status is the terminal state of one automation run.
type Status string

const (
	// StatusExecuted means the actions ran to completion or until a stop
	// sequence signal.
	StatusExecuted Status = "executed"
	// StatusSkipped means no trigger matched or a condition did not hold.
	StatusSkipped Status = "skipped"
	// StatusPaused means an action suspended the run; it can be resumed by id.
	StatusPaused Status = "paused"
	// StatusStopped means an action aborted the run. It is not a failure.
	StatusStopped Status = "stopped"
	// StatusNotResumable is returned by Resume for unknown or expired ids.
	StatusNotResumable Status = "not_resumable"
	// StatusFailed is only reported to metrics; failing runs return an error.
	StatusFailed Status = "failed"
)

// AutomationResult describes the outcome of a run.
type AutomationResult struct {
	Automation  string `json:"automation"`
	ExecutionID string `json:"execution_id"`
	Status      Status `json:"status"`
	// Executed is true only for StatusExecuted.
	Executed bool `json:"executed"`
	// Payload is produced by the automation result unit, if any.
	Payload any `json:"payload,omitempty"`
	// Reason carries the stop or skip reason.
	Reason string `json:"reason,omitempty"`
	// Cursor is the index of the next action to run when paused.
	Cursor int `json:"cursor,omitempty"`
	// Deadline bounds a paused run; zero means no deadline.
	Deadline time.Time     `json:"deadline,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func (r AutomationResult) Paused() bool {
	return r.Status == StatusPaused
}
