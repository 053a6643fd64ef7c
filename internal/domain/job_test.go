package domain

import "testing"

func TestJobStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusDone, false},
		{JobStatusRunning, JobStatusDone, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusDone, JobStatusRunning, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusFailed, JobStatusFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	if JobStatusPending.Terminal() || JobStatusRunning.Terminal() {
		t.Error("pending/running must not be terminal")
	}
	if !JobStatusDone.Terminal() || !JobStatusFailed.Terminal() {
		t.Error("done/failed must be terminal")
	}
}
