package models

import "time"

// Task is the owning group for a batch of assignments: one source image
// split into tiles, published as a unit. Assignments copy its threshold
// and timeout at creation time, so task rows are read-mostly here.
type Task struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Published               bool      `json:"published"`
	Algorithm               string    `json:"algorithm"`
	TileDimension           int       `json:"tile_dimension"`
	TileBorder              float64   `json:"tile_border"`
	MinResultsPerAssignment int       `json:"min_results_per_assignment"`
	TimeoutSeconds          int       `json:"timeout_seconds"`
	CreatedAt               time.Time `json:"created_at"`
}
