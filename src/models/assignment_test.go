package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func publicAssignment(minResults int) *Assignment {
	return &Assignment{
		ID:         "a1",
		MinResults: minResults,
		Workable:   boolPtr(true),
		Published:  true,
	}
}

func TestRemainingNeededFloorsAtZero(t *testing.T) {
	a := publicAssignment(3)
	assert.Equal(t, 3, a.RemainingNeeded(0))
	assert.Equal(t, 1, a.RemainingNeeded(2))
	assert.Equal(t, 0, a.RemainingNeeded(3))
	assert.Equal(t, 0, a.RemainingNeeded(5))
}

func TestAvailableWith(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Assignment)
		counts    AvailabilityCounts
		available bool
	}{
		{"fresh assignment", nil, AvailabilityCounts{}, true},
		{"unset workable", func(a *Assignment) { a.Workable = nil }, AvailabilityCounts{}, false},
		{"workable false", func(a *Assignment) { a.Workable = boolPtr(false) }, AvailabilityCounts{}, false},
		{"unpublished", func(a *Assignment) { a.Published = false }, AvailabilityCounts{}, false},
		{"concluded", func(a *Assignment) { a.Concluded = true }, AvailabilityCounts{}, false},
		{"all slots occupied", nil, AvailabilityCounts{ActiveSessions: 3}, false},
		{"one slot left", nil, AvailabilityCounts{ActiveSessions: 2}, true},
		{"result keeps slot closed", nil, AvailabilityCounts{ActiveSessions: 2, ResultSessions: 1}, false},
		{"skip reopens slot", nil, AvailabilityCounts{ActiveSessions: 1, ResultSessions: 1}, true},
		{"enough results", nil, AvailabilityCounts{ResultSessions: 3}, false},
		{"excess results never go negative", nil, AvailabilityCounts{ResultSessions: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := publicAssignment(3)
			if tt.mutate != nil {
				tt.mutate(a)
			}
			assert.Equal(t, tt.available, a.AvailableWith(tt.counts))
		})
	}
}

func TestHasMerge(t *testing.T) {
	a := publicAssignment(3)
	assert.False(t, a.HasMerge())
	a.MergeRef = "mem://localhost/results/a1/tile_merge.png"
	assert.True(t, a.HasMerge())
}
