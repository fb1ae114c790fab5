package automation

import (
	"strings"
	"time"
)

// ActionOutcome tells the action loop how to proceed after an action.
type ActionOutcome int

const (
	// OutcomeContinue proceeds to the next action.
	OutcomeContinue ActionOutcome = iota
	// OutcomePause suspends the remaining actions until resumed.
	OutcomePause
	// OutcomeStopSequence skips the remaining actions of this run.
	OutcomeStopSequence
	// OutcomeStopAutomation aborts the whole run without a result payload.
	OutcomeStopAutomation
)

func (o ActionOutcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomePause:
		return "pause"
	case OutcomeStopSequence:
		return "stop_sequence"
	case OutcomeStopAutomation:
		return "stop_automation"
	default:
		return "unknown"
	}
}

// PauseRequest describes how a paused run may be resumed.
type PauseRequest struct {
	// ResumeTrigger resumes the run when a dispatched event satisfies it.
	ResumeTrigger *Step
	// Timeout bounds how long the paused state stays resumable; zero means
	// no deadline.
	Timeout time.Duration
	// ResumeAfter schedules a resume once the state has been persisted.
	ResumeAfter time.Duration
}

// ActionResult is the tagged value returned by actions. The zero value
// continues.
type ActionResult struct {
	Outcome ActionOutcome
	Reason  string
	Pause   *PauseRequest
}

// Continue proceeds to the next action.
func Continue() ActionResult {
	return ActionResult{Outcome: OutcomeContinue}
}

// Pause suspends the run after the current action.
func Pause(req PauseRequest) ActionResult {
	if req.ResumeTrigger != nil {
		step := req.ResumeTrigger.Clone()
		req.ResumeTrigger = &step
	}
	return ActionResult{Outcome: OutcomePause, Pause: &req}
}

// StopSequence skips the remaining actions of the current run.
func StopSequence(reason string) ActionResult {
	return ActionResult{Outcome: OutcomeStopSequence, Reason: strings.TrimSpace(reason)}
}

// StopAutomation aborts the current run. It is a normal completion, not a
// failure.
func StopAutomation(reason string) ActionResult {
	return ActionResult{Outcome: OutcomeStopAutomation, Reason: strings.TrimSpace(reason)}
}

// IsSignal reports whether the result alters the default sequential flow.
func (r ActionResult) IsSignal() bool {
	return r.Outcome != OutcomeContinue
}
