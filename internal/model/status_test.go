package model

import "testing"

func TestJobState_IsActive(t *testing.T) {
	tests := []struct {
		state    JobState
		expected bool
	}{
		{JobStateQueued, false},
		{JobStateRunning, true},
		{JobStateCompleted, false},
		{JobStateFailed, false},
	}

	for _, test := range tests {
		result := test.state.IsActive()
		if result != test.expected {
			t.Errorf("JobState(%s).IsActive() = %v, expected %v", test.state, result, test.expected)
		}
	}
}

func TestJobState_IsFinished(t *testing.T) {
	tests := []struct {
		state    JobState
		expected bool
	}{
		{JobStateQueued, false},
		{JobStateRunning, false},
		{JobStateCompleted, true},
		{JobStateFailed, true},
	}

	for _, test := range tests {
		result := test.state.IsFinished()
		if result != test.expected {
			t.Errorf("JobState(%s).IsFinished() = %v, expected %v", test.state, result, test.expected)
		}
	}
}

func TestJobState_String(t *testing.T) {
	state := JobStateRunning
	expected := "Running"
	result := state.String()

	if result != expected {
		t.Errorf("JobState.String() = %s, expected %s", result, expected)
	}
}

func TestOutcome_State(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		expected JobState
	}{
		{OutcomeSucceeded, JobStateCompleted},
		{OutcomeRateLimited, JobStateFailed},
		{OutcomeFailed, JobStateFailed},
		{OutcomeCancelled, JobStateFailed},
	}

	for _, test := range tests {
		if got := test.outcome.State(); got != test.expected {
			t.Errorf("Outcome(%s).State() = %s, expected %s", test.outcome, got, test.expected)
		}
	}
}
