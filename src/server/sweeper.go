package server

import (
	"context"
	"log/slog"
	"time"

	"crowdseg-service/src/service"
)

// Sweeper periodically runs the conclusion reconciliation pass. It exists
// purely to catch clock drift and missed triggers; the event-driven path
// concludes assignments as results arrive.
type Sweeper struct {
	conclusion *service.ConclusionService
	interval   time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// NewSweeper creates a sweeper running at the given interval.
func NewSweeper(conclusion *service.ConclusionService, interval time.Duration) *Sweeper {
	return &Sweeper{
		conclusion: conclusion,
		interval:   interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.conclusion.EnforceConcluded(context.Background()); err != nil {
					slog.Error("Conclusion sweep failed", "error", err.Error())
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
