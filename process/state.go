package process

import (
	"time"
)

// Status is the lifecycle state of a Process.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusRunning    Status = "RUNNING"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the state machine:
// NOT_STARTED -> RUNNING <-> PAUSED -> {COMPLETED | FAILED | CANCELLED}.
func canTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case StatusNotStarted:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusPaused || to.IsTerminal()
	case StatusPaused:
		return to == StatusRunning || to.IsTerminal()
	}
	return false
}

// EventType classifies history events.
type EventType string

const (
	EventStatusChange   EventType = "status_change"
	EventStepNavigation EventType = "step_navigation"
	EventException      EventType = "exception"
	EventStepData       EventType = "step_data"
)

// Event is one append-only history entry.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	StepID    string         `json:"step_id,omitempty"`
	From      Status         `json:"from,omitempty"`
	To        Status         `json:"to,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// StepData records one step's output.
type StepData struct {
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Validated bool           `json:"validated"`
}

// State is the immutable, event-sourced snapshot of a Process: its status,
// current step, navigation history, and step outputs. Every transition
// returns a new State; history only grows and existing entries are never
// reordered or deleted. The Process holds only the latest handle.
type State struct {
	status        Status
	currentStepID string
	history       []Event
	stepData      map[string]StepData
}

// NewState creates the initial NOT_STARTED state.
func NewState() *State {
	return &State{
		status:   StatusNotStarted,
		stepData: make(map[string]StepData),
	}
}

// Status returns the current lifecycle status.
func (s *State) Status() Status { return s.status }

// CurrentStepID returns the step the process is positioned at.
func (s *State) CurrentStepID() string { return s.currentStepID }

// History returns a copy of the event history.
func (s *State) History() []Event {
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of history entries without copying.
func (s *State) HistoryLen() int { return len(s.history) }

// StepData returns the recorded output for a step.
func (s *State) StepData(stepID string) (StepData, bool) {
	d, ok := s.stepData[stepID]
	return d, ok
}

// StepDataMap returns a copy of all recorded step outputs.
func (s *State) StepDataMap() map[string]StepData {
	out := make(map[string]StepData, len(s.stepData))
	for k, v := range s.stepData {
		out[k] = v
	}
	return out
}

// IsStepCompleted is true iff the step has validated output data.
func (s *State) IsStepCompleted(stepID string) bool {
	d, ok := s.stepData[stepID]
	return ok && d.Validated
}

// IsStepSkipped is true iff a skip event for the step exists in history.
// No un-skip operation exists; skips are permanent for a navigation pass.
func (s *State) IsStepSkipped(stepID string) bool {
	for _, ev := range s.history {
		if ev.Type == EventException && ev.StepID == stepID {
			if skipped, ok := ev.Details["skipped"].(bool); ok && skipped {
				return true
			}
		}
	}
	return false
}

// CanGoToStep holds for any valid step while the process is RUNNING;
// navigation itself is unconstrained, only process status gates it.
func (s *State) CanGoToStep(stepID string) bool {
	return s.status == StatusRunning
}

// clone produces the mutable base for one transition. The history slice is
// capacity-clamped so appends never write into a shared backing array.
func (s *State) clone() *State {
	next := &State{
		status:        s.status,
		currentStepID: s.currentStepID,
		history:       s.history[:len(s.history):len(s.history)],
		stepData:      s.stepData,
	}
	return next
}

// cloneStepData deep-copies the step data map for transitions that touch it.
func (s *State) cloneStepData() map[string]StepData {
	out := make(map[string]StepData, len(s.stepData)+1)
	for k, v := range s.stepData {
		out[k] = v
	}
	return out
}

// WithStatus returns a new State with the given status and a status_change
// event appended.
func (s *State) WithStatus(to Status, reason string) *State {
	next := s.clone()
	next.history = append(next.history, Event{
		Type:      EventStatusChange,
		Timestamp: time.Now(),
		From:      s.status,
		To:        to,
		Reason:    reason,
	})
	next.status = to
	return next
}

// WithCurrentStep returns a new State positioned at stepID.
func (s *State) WithCurrentStep(stepID string) *State {
	next := s.clone()
	next.currentStepID = stepID
	return next
}

// WithStepNavigation returns a new State positioned at stepID with a
// step_navigation event appended.
func (s *State) WithStepNavigation(stepID, reason string) *State {
	next := s.clone()
	next.history = append(next.history, Event{
		Type:      EventStepNavigation,
		Timestamp: time.Now(),
		StepID:    stepID,
		Reason:    reason,
		Details: map[string]any{
			"from_step": s.currentStepID,
		},
	})
	next.currentStepID = stepID
	return next
}

// WithStepSkip returns a new State recording a skip of stepID, with any
// manual override data stored unvalidated-or-validated per the caller.
func (s *State) WithStepSkip(stepID, reason string, manualData map[string]any, validated bool) *State {
	next := s.clone()
	details := map[string]any{
		"skipped": true,
	}
	if manualData != nil {
		details["manual_data"] = manualData
	}
	if !validated {
		details["validation"] = "warnings"
	}
	next.history = append(next.history, Event{
		Type:      EventException,
		Timestamp: time.Now(),
		StepID:    stepID,
		Reason:    reason,
		Details:   details,
	})
	if manualData != nil {
		data := next.cloneStepData()
		data[stepID] = StepData{
			Data:      manualData,
			Timestamp: time.Now(),
			Source:    "manual",
			Validated: validated,
		}
		next.stepData = data
	}
	return next
}

// WithStepData returns a new State recording validated output for stepID
// with a step_data event appended.
func (s *State) WithStepData(stepID string, data map[string]any) *State {
	next := s.clone()
	next.history = append(next.history, Event{
		Type:      EventStepData,
		Timestamp: time.Now(),
		StepID:    stepID,
		Details: map[string]any{
			"fields": len(data),
		},
	})
	sd := next.cloneStepData()
	sd[stepID] = StepData{
		Data:      data,
		Timestamp: time.Now(),
		Source:    "execution",
		Validated: true,
	}
	next.stepData = sd
	return next
}

// WithException returns a new State recording a non-skip exception event.
func (s *State) WithException(stepID string, err error) *State {
	next := s.clone()
	next.history = append(next.history, Event{
		Type:      EventException,
		Timestamp: time.Now(),
		StepID:    stepID,
		Reason:    err.Error(),
		Details: map[string]any{
			"error": err.Error(),
		},
	})
	return next
}
