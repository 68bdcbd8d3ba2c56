package service

import (
	"context"
	"fmt"
	"log/slog"

	"crowdseg-service/src/clock"
	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
	"crowdseg-service/src/repository"
	"crowdseg-service/src/storage"
)

// SessionService drives the explicit session transitions: close, with or
// without a result, and cancel.
type SessionService struct {
	db           *db.DB
	tasks        *repository.TaskRepository
	assignments  *repository.AssignmentRepository
	sessions     *repository.SessionRepository
	results      *storage.ResultStore
	preprocessor Preprocessor
	conclusion   *ConclusionService
	clock        clock.Clock
}

// NewSessionService creates a new session service.
func NewSessionService(database *db.DB, tasks *repository.TaskRepository, assignments *repository.AssignmentRepository, sessions *repository.SessionRepository, results *storage.ResultStore, preprocessor Preprocessor, conclusion *ConclusionService, clk clock.Clock) *SessionService {
	return &SessionService{
		db:           database,
		tasks:        tasks,
		assignments:  assignments,
		sessions:     sessions,
		results:      results,
		preprocessor: preprocessor,
		conclusion:   conclusion,
		clock:        clk,
	}
}

// Close closes a session, attaching the normalized result when one is
// supplied in time. A submission past the expiration deadline is
// discarded: expiration wins over a late result.
//
// The close itself is a single compare-and-set on the session row, so no
// lock is held across the preprocess call or the merge that a conclusion
// may trigger afterwards.
func (s *SessionService) Close(ctx context.Context, sessionID string, rawResult []byte) error {
	now := s.clock.Now()
	conn := s.db.GetConnection()

	session, err := s.sessions.GetByID(ctx, conn, sessionID)
	if err != nil {
		return err
	}
	if session.Closed() {
		return models.ErrAlreadyClosed
	}

	resultRef := ""
	mileage := 0
	if len(rawResult) > 0 && !session.ExpiredAt(now) {
		resultRef, mileage = s.prepareResult(ctx, session, rawResult)
	}

	if err := s.sessions.Close(ctx, conn, sessionID, now, resultRef); err != nil {
		if resultRef != "" {
			// The stored mask belongs to no closed session; drop it.
			if delErr := s.results.Delete(ctx, resultRef); delErr != nil {
				slog.Warn("Failed to delete orphaned result", "ref", resultRef, "error", delErr)
			}
		}
		return err
	}

	slog.Info("Session closed",
		"session_id", sessionID,
		"assignment_id", session.AssignmentID,
		"with_result", resultRef != "")

	if resultRef == "" {
		return nil
	}

	if err := s.sessions.RecordStats(ctx, sessionID, mileage); err != nil {
		slog.Warn("Failed to record session stats", "session_id", sessionID, "error", err)
	}

	// Conclusion runs after the close has committed.
	if err := s.conclusion.Evaluate(ctx, session.AssignmentID); err != nil {
		return fmt.Errorf("failed to evaluate conclusion: %w", err)
	}
	return nil
}

// prepareResult normalizes and stores a raw submission. Preprocess or
// storage failures degrade the close to a skip, mirroring how a broken
// upload is treated: the session still closes, just without a result.
func (s *SessionService) prepareResult(ctx context.Context, session *models.Session, rawResult []byte) (string, int) {
	assignment, err := s.assignments.GetByID(ctx, s.db.GetConnection(), session.AssignmentID)
	if err != nil {
		slog.Warn("Failed to load assignment for result", "session_id", session.ID, "error", err)
		return "", 0
	}
	task, err := s.tasks.GetTaskByID(ctx, assignment.TaskID)
	if err != nil {
		slog.Warn("Failed to load task for result", "session_id", session.ID, "error", err)
		return "", 0
	}

	mask, mileage, err := s.preprocessor.Normalize(ctx, rawResult, task.TileDimension)
	if err != nil {
		slog.Warn("Failed to preprocess result, closing without result",
			"session_id", session.ID, "error", err)
		return "", 0
	}

	ref, err := s.results.SaveResult(ctx, session.AssignmentID, session.ID, mask)
	if err != nil {
		slog.Warn("Failed to store result, closing without result",
			"session_id", session.ID, "error", err)
		return "", 0
	}
	return ref, mileage
}

// Cancel retracts an active session entirely, freeing the worker and the
// assignment slot it occupied. Fails with ErrNotActive once the session
// is closed or past its deadline.
func (s *SessionService) Cancel(ctx context.Context, sessionID string) error {
	now := s.clock.Now()

	return withTxRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		session, err := s.sessions.LockByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := session.EnsureCancelable(now); err != nil {
			return err
		}
		if err := s.sessions.Delete(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return repository.TranslateError(err)
		}

		slog.Info("Session cancelled",
			"session_id", sessionID,
			"assignment_id", session.AssignmentID,
			"worker_id", session.WorkerID)
		return nil
	})
}
