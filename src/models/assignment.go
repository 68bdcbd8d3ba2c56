package models

import "time"

// Assignment is one unit of annotation work (one image tile). It collects
// worker sessions until MinResults independent results have accumulated,
// then it is concluded and closed to new work.
type Assignment struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	TileRef        string    `json:"tile_ref"`
	PreSegRef      string    `json:"pre_seg_ref,omitempty"`
	MergeRef       string    `json:"merge_ref,omitempty"`
	MinResults     int       `json:"min_results"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Workable       *bool     `json:"workable"`
	Concluded      bool      `json:"concluded"`
	CreatedAt      time.Time `json:"created_at"`

	// Published is denormalized from the owning task on read.
	Published bool `json:"published"`
}

// AvailabilityCounts carries the session counts the availability formula
// needs, as observed by a single snapshot read.
type AvailabilityCounts struct {
	// ActiveSessions is the number of sessions still open and not past
	// their expiration deadline.
	ActiveSessions int
	// ResultSessions is the number of sessions holding a result.
	ResultSessions int
}

// IsWorkable reports whether the workable flag is explicitly true.
// Unset counts the same as false.
func (a *Assignment) IsWorkable() bool {
	return a.Workable != nil && *a.Workable
}

// Timeout is the time budget granted to each session of this assignment.
func (a *Assignment) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RemainingNeeded is how many more results this assignment needs before
// it can conclude. Never negative.
func (a *Assignment) RemainingNeeded(resultSessions int) int {
	remaining := a.MinResults - resultSessions
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AvailableWith decides whether the assignment accepts a new session given
// the observed session counts.
//
// A new session raises ActiveSessions without touching ResultSessions, so
// expiry or a skip reopens a slot, while a genuine result shrinks
// RemainingNeeded and closes one permanently. That asymmetry keeps excess
// workers out once enough results exist while still tolerating no-shows.
func (a *Assignment) AvailableWith(c AvailabilityCounts) bool {
	if !a.IsWorkable() || !a.Published || a.Concluded {
		return false
	}
	return c.ActiveSessions < a.RemainingNeeded(c.ResultSessions)
}

// HasMerge reports whether a consensus merge has been stored.
func (a *Assignment) HasMerge() bool {
	return a.MergeRef != ""
}
