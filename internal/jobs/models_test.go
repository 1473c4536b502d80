package jobs

import "testing"

func TestLegalTransitions(t *testing.T) {
	legal := []struct {
		from, to Status
	}{
		{StatusQueued, StatusRunning},
		{StatusQueued, StatusCancelled},
		{StatusRunning, StatusPaused},
		{StatusPaused, StatusRunning},
		{StatusRunning, StatusStalled},
		{StatusStalled, StatusRetrying},
		{StatusRetrying, StatusRunning},
		{StatusRetrying, StatusFailed},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusCancelled},
		{StatusPaused, StatusCancelled},
		{StatusStalled, StatusCancelled},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	illegal := []struct {
		from, to Status
	}{
		{StatusQueued, StatusCompleted},
		{StatusQueued, StatusPaused},
		{StatusPaused, StatusCompleted},
		{StatusStalled, StatusRunning},
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusRetrying},
		{StatusCancelled, StatusQueued},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRunning, StatusPaused, StatusStalled, StatusRetrying} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestProgressDone(t *testing.T) {
	if (Progress{Total: 3, Succeeded: 1, Failed: 1}).Done() {
		t.Fatal("incomplete progress reported done")
	}
	if !(Progress{Total: 3, Succeeded: 1, Failed: 1, Skipped: 1}).Done() {
		t.Fatal("complete progress not reported done")
	}
}
