package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusQueued))
	assert.True(t, CanTransition(StatusQueued, StatusRunning))
	assert.True(t, CanTransition(StatusQueued, StatusDraft), "restart reconciliation demotes queued runs")
	assert.True(t, CanTransition(StatusRunning, StatusCompleted))
	assert.True(t, CanTransition(StatusRunning, StatusFailed))
	assert.True(t, CanTransition(StatusRunning, StatusCancelled))

	// Terminal states are final.
	for _, terminal := range []RunStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, terminal.Terminal())
		for _, to := range []RunStatus{StatusDraft, StatusQueued, StatusRunning} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}

	assert.False(t, CanTransition(StatusDraft, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusRunning))
}

func TestEnabledStepsFallsBackToDefault(t *testing.T) {
	profile := &ModelProfile{}
	assert.Equal(t, []StepKind{StepClassifySubject, StepClassifyTopic, StepClassifySubtopic, StepAnswer},
		profile.EnabledSteps())

	profile.Steps = []PipelineStep{
		{Kind: StepClassifySubject, Enabled: false},
		{Kind: StepAnswer, Enabled: true},
	}
	assert.Equal(t, []StepKind{StepAnswer}, profile.EnabledSteps())
}

func TestNewIDsAreSortableAndUnique(t *testing.T) {
	a := newID()
	b := newID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
