package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crowdseg-service/src/clock"
	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
	"crowdseg-service/src/repository"
	"crowdseg-service/src/schemas"

	"github.com/google/uuid"
)

// candidateLimit bounds how many available assignments one allocation
// attempt will lock-and-recheck before giving up. Losing a race on a
// candidate just moves on to the next one.
const candidateLimit = 10

// AllocationService decides which session a requesting worker receives.
// It enforces worker exclusivity, reclaims stale sessions as a read-time
// side effect, and evaluates availability atomically with session
// creation.
type AllocationService struct {
	db          *db.DB
	tasks       *repository.TaskRepository
	assignments *repository.AssignmentRepository
	sessions    *repository.SessionRepository
	clock       clock.Clock
}

// NewAllocationService creates a new allocation service.
func NewAllocationService(database *db.DB, tasks *repository.TaskRepository, assignments *repository.AssignmentRepository, sessions *repository.SessionRepository, clk clock.Clock) *AllocationService {
	return &AllocationService{
		db:          database,
		tasks:       tasks,
		assignments: assignments,
		sessions:    sessions,
		clock:       clk,
	}
}

// GetByWorker returns the single session the worker should act on next,
// or nil when no work exists. Polling again before any close or expiry
// returns the same session.
func (s *AllocationService) GetByWorker(ctx context.Context, workerID string) (*schemas.SessionView, error) {
	var session *models.Session
	var assignment *models.Assignment

	err := withTxRetry(ctx, func() error {
		var allocErr error
		session, assignment, allocErr = s.allocateOnce(ctx, workerID)
		return allocErr
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return s.buildView(ctx, session, assignment)
}

// allocateOnce runs one allocation transaction end to end: reclaim,
// idempotent return, or find-and-create. The availability re-check after
// the assignment row lock is what keeps two concurrent callers off the
// last open slot.
func (s *AllocationService) allocateOnce(ctx context.Context, workerID string) (*models.Session, *models.Assignment, error) {
	now := s.clock.Now()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	open, err := s.sessions.GetOpenForWorker(ctx, tx, workerID)
	if err != nil {
		return nil, nil, err
	}
	if open != nil {
		openAssignment, err := s.assignments.GetByID(ctx, tx, open.AssignmentID)
		if err != nil {
			return nil, nil, err
		}
		if openAssignment.Published && !open.ExpiredAt(now) {
			if err := tx.Commit(); err != nil {
				return nil, nil, repository.TranslateError(err)
			}
			return open, openAssignment, nil
		}

		// The session expired or its task was pulled from publication.
		// Reclaim it here, at read time, with no result attached; the
		// close CAS makes a concurrent close harmless.
		err = s.sessions.Close(ctx, tx, open.ID, now, "")
		if err != nil && !errors.Is(err, models.ErrAlreadyClosed) {
			return nil, nil, err
		}
		slog.Info("Reclaimed stale session",
			"session_id", open.ID,
			"worker_id", workerID,
			"assignment_id", open.AssignmentID,
			"expired", open.ExpiredAt(now))
	}

	candidates, err := s.assignments.FindAvailableIDs(ctx, tx, workerID, now, candidateLimit)
	if err != nil {
		return nil, nil, err
	}

	for _, assignmentID := range candidates {
		if err := s.assignments.LockByID(ctx, tx, assignmentID); err != nil {
			if errors.Is(err, models.ErrAssignmentNotFound) {
				continue
			}
			return nil, nil, err
		}

		assignment, err := s.assignments.GetByID(ctx, tx, assignmentID)
		if err != nil {
			return nil, nil, err
		}
		counts, err := s.assignments.AvailabilityCounts(ctx, tx, assignmentID, now)
		if err != nil {
			return nil, nil, err
		}
		if !assignment.AvailableWith(counts) {
			// Lost the last slot to a concurrent allocation while
			// waiting on the lock; try the next candidate.
			continue
		}

		session := &models.Session{
			ID:                 uuid.New().String(),
			AssignmentID:       assignmentID,
			WorkerID:           workerID,
			StartTime:          now,
			ExpirationDeadline: now.Add(assignment.Timeout()),
		}
		if err := s.sessions.Create(ctx, tx, session); err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, repository.TranslateError(err)
		}

		slog.Info("Allocated session",
			"session_id", session.ID,
			"worker_id", workerID,
			"assignment_id", assignmentID)
		return session, assignment, nil
	}

	// No work for this worker. The reclaim above still has to land.
	if err := tx.Commit(); err != nil {
		return nil, nil, repository.TranslateError(err)
	}
	return nil, nil, nil
}

func (s *AllocationService) buildView(ctx context.Context, session *models.Session, assignment *models.Assignment) (*schemas.SessionView, error) {
	task, err := s.tasks.GetTaskByID(ctx, assignment.TaskID)
	if err != nil {
		return nil, err
	}
	return &schemas.SessionView{
		SessionID:            session.ID,
		AssignmentID:         assignment.ID,
		TileRef:              assignment.TileRef,
		PreSegRef:            assignment.PreSegRef,
		RemainingTimeSeconds: int64(session.RemainingTime(s.clock.Now()).Seconds()),
		Algorithm:            task.Algorithm,
		TileBorder:           task.TileBorder,
	}, nil
}

// Availability reports an assignment's current capacity for new
// sessions. Read-only introspection for reporting and admin tooling.
func (s *AllocationService) Availability(ctx context.Context, assignmentID string) (*schemas.AvailabilityView, error) {
	conn := s.db.GetConnection()
	assignment, err := s.assignments.GetByID(ctx, conn, assignmentID)
	if err != nil {
		return nil, err
	}
	counts, err := s.assignments.AvailabilityCounts(ctx, conn, assignmentID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &schemas.AvailabilityView{
		AssignmentID:    assignment.ID,
		Available:       assignment.AvailableWith(counts),
		RemainingNeeded: assignment.RemainingNeeded(counts.ResultSessions),
		ActiveSessions:  counts.ActiveSessions,
		ResultSessions:  counts.ResultSessions,
		Concluded:       assignment.Concluded,
	}, nil
}

// IsAvailable reports whether the assignment currently accepts new
// sessions.
func (s *AllocationService) IsAvailable(ctx context.Context, assignmentID string) (bool, error) {
	view, err := s.Availability(ctx, assignmentID)
	if err != nil {
		return false, err
	}
	return view.Available, nil
}

// RemainingNeeded reports how many more results the assignment needs
// before it concludes.
func (s *AllocationService) RemainingNeeded(ctx context.Context, assignmentID string) (int, error) {
	view, err := s.Availability(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	return view.RemainingNeeded, nil
}
