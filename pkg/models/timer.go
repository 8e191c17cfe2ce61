package models

import "time"

// ActiveTimer is the metadata for one running countdown. A timer's lifecycle
// is orthogonal to its step's status: it may outlive step completion and a
// step may be active with no timer at all.
type ActiveTimer struct {
	ID           string    `json:"id"`
	StepID       string    `json:"step_id,omitempty"`
	Label        string    `json:"label"`
	DurationSecs int       `json:"duration_secs"`
	StartedAt    time.Time `json:"started_at"`
	EndTS        time.Time `json:"end_ts"`
}

// RemainingSecs returns the whole seconds left until EndTS, clamped at 0.
// StartedAt carries Go's monotonic clock reading, so the result is immune
// to wall-clock adjustments.
func (t *ActiveTimer) RemainingSecs() int {
	rem := time.Until(t.EndTS)
	if rem <= 0 {
		return 0
	}
	return int((rem + 500*time.Millisecond) / time.Second)
}

// TimerState is the legacy wire shape UI snapshots carry per step.
type TimerState struct {
	DurationSecs  int     `json:"duration_secs"`
	EndTS         float64 `json:"end_ts"` // unix seconds
	RemainingSecs int     `json:"remaining_secs"`
}

// State converts the timer metadata into the legacy snapshot shape.
func (t *ActiveTimer) State() *TimerState {
	return &TimerState{
		DurationSecs:  t.DurationSecs,
		EndTS:         float64(t.EndTS.UnixMilli()) / 1000.0,
		RemainingSecs: t.RemainingSecs(),
	}
}
