package schemas

// SessionView is what a polling worker receives: everything the
// annotation client needs to render the tile and count down the session.
type SessionView struct {
	SessionID            string  `json:"session_id"`
	AssignmentID         string  `json:"assignment_id"`
	TileRef              string  `json:"tile_ref"`
	PreSegRef            string  `json:"pre_seg_ref,omitempty"`
	RemainingTimeSeconds int64   `json:"remaining_time_seconds"`
	Algorithm            string  `json:"algorithm"`
	TileBorder           float64 `json:"tile_border"`
}

// AvailabilityView is the read-only introspection of an assignment's
// current capacity, for reporting and admin tooling.
type AvailabilityView struct {
	AssignmentID    string `json:"assignment_id"`
	Available       bool   `json:"available"`
	RemainingNeeded int    `json:"remaining_needed"`
	ActiveSessions  int    `json:"active_sessions"`
	ResultSessions  int    `json:"result_sessions"`
	Concluded       bool   `json:"concluded"`
}

// ConcludedEvent is published on the fanout exchange whenever an
// assignment flips to concluded.
type ConcludedEvent struct {
	AssignmentID string `json:"assignment_id"`
	TaskID       string `json:"task_id"`
	ResultCount  int    `json:"result_count"`
	MergeRef     string `json:"merge_ref,omitempty"`
	ConcludedAt  string `json:"concluded_at"`
}
