package process

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_InitialState(t *testing.T) {
	s := NewState()
	assert.Equal(t, StatusNotStarted, s.Status())
	assert.Empty(t, s.CurrentStepID())
	assert.Zero(t, s.HistoryLen())
}

func TestState_TransitionsAreImmutable(t *testing.T) {
	s1 := NewState()
	s2 := s1.WithStatus(StatusRunning, "started")
	s3 := s2.WithStepData("step-1", map[string]any{"x": 1})

	// Earlier handles never observe later transitions.
	assert.Equal(t, StatusNotStarted, s1.Status())
	assert.Zero(t, s1.HistoryLen())
	assert.Equal(t, StatusRunning, s2.Status())
	assert.Equal(t, 1, s2.HistoryLen())
	assert.Equal(t, 2, s3.HistoryLen())

	_, ok := s2.StepData("step-1")
	assert.False(t, ok)
	_, ok = s3.StepData("step-1")
	assert.True(t, ok)
}

func TestState_SharedBackingArrayIsNeverMutated(t *testing.T) {
	base := NewState().WithStatus(StatusRunning, "started")

	// Two branches appending onto the same parent must not see each other.
	a := base.WithStepNavigation("step-a", "branch a")
	b := base.WithStepNavigation("step-b", "branch b")

	ha, hb := a.History(), b.History()
	require.Equal(t, 2, len(ha))
	require.Equal(t, 2, len(hb))
	assert.Equal(t, "step-a", ha[1].StepID)
	assert.Equal(t, "step-b", hb[1].StepID)
}

func TestState_HistoryReturnsCopy(t *testing.T) {
	s := NewState().WithStatus(StatusRunning, "started")
	h := s.History()
	h[0].Reason = "tampered"
	assert.Equal(t, "started", s.History()[0].Reason)
}

func TestState_StatusChangeEventFields(t *testing.T) {
	s := NewState().WithStatus(StatusRunning, "started")
	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, EventStatusChange, h[0].Type)
	assert.Equal(t, StatusNotStarted, h[0].From)
	assert.Equal(t, StatusRunning, h[0].To)
	assert.False(t, h[0].Timestamp.IsZero())
}

func TestState_WithCurrentStepEmitsNoEvent(t *testing.T) {
	s := NewState().WithStatus(StatusRunning, "started")
	before := s.HistoryLen()
	s = s.WithCurrentStep("step-2")
	assert.Equal(t, "step-2", s.CurrentStepID())
	assert.Equal(t, before, s.HistoryLen())
}

func TestState_NavigationRecordsFromStep(t *testing.T) {
	s := NewState().
		WithStatus(StatusRunning, "started").
		WithCurrentStep("step-1").
		WithStepNavigation("step-3", "jumping ahead")

	h := s.History()
	last := h[len(h)-1]
	assert.Equal(t, EventStepNavigation, last.Type)
	assert.Equal(t, "step-3", last.StepID)
	assert.Equal(t, "step-1", last.Details["from_step"])
	assert.Equal(t, "step-3", s.CurrentStepID())
}

func TestState_SkipWithValidManualData(t *testing.T) {
	s := NewState().
		WithStatus(StatusRunning, "started").
		WithStepSkip("step-1", "customer provided data offline", map[string]any{"total": 42}, true)

	assert.True(t, s.IsStepSkipped("step-1"))
	assert.True(t, s.IsStepCompleted("step-1"))

	d, ok := s.StepData("step-1")
	require.True(t, ok)
	assert.Equal(t, "manual", d.Source)
	assert.True(t, d.Validated)

	h := s.History()
	last := h[len(h)-1]
	assert.Equal(t, EventException, last.Type)
	assert.Equal(t, true, last.Details["skipped"])
	_, hasWarning := last.Details["validation"]
	assert.False(t, hasWarning)
}

func TestState_SkipWithInvalidManualDataKeepsWarning(t *testing.T) {
	s := NewState().
		WithStatus(StatusRunning, "started").
		WithStepSkip("step-1", "partial data", map[string]any{"partial": true}, false)

	assert.True(t, s.IsStepSkipped("step-1"))
	// Unvalidated manual data never counts as completion.
	assert.False(t, s.IsStepCompleted("step-1"))

	h := s.History()
	last := h[len(h)-1]
	assert.Equal(t, "warnings", last.Details["validation"])
}

func TestState_SkipWithoutManualData(t *testing.T) {
	s := NewState().
		WithStatus(StatusRunning, "started").
		WithStepSkip("step-1", "not applicable", nil, true)

	assert.True(t, s.IsStepSkipped("step-1"))
	_, ok := s.StepData("step-1")
	assert.False(t, ok)
}

func TestState_ExceptionIsNotASkip(t *testing.T) {
	s := NewState().
		WithStatus(StatusRunning, "started").
		WithException("step-1", errors.New("boom"))

	assert.False(t, s.IsStepSkipped("step-1"))
	h := s.History()
	last := h[len(h)-1]
	assert.Equal(t, EventException, last.Type)
	assert.Equal(t, "boom", last.Reason)
}

func TestState_CanGoToStepGatedByStatus(t *testing.T) {
	s := NewState()
	assert.False(t, s.CanGoToStep("any"))

	s = s.WithStatus(StatusRunning, "started")
	assert.True(t, s.CanGoToStep("any"))

	s = s.WithStatus(StatusPaused, "hold")
	assert.False(t, s.CanGoToStep("any"))
}

func TestStatus_Terminality(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.False(t, StatusNotStarted.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNotStarted, StatusRunning, true},
		{StatusNotStarted, StatusCancelled, true},
		{StatusNotStarted, StatusPaused, false},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusPaused, StatusRunning, true},
		{StatusPaused, StatusCancelled, true},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
