package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
)

// SessionRepository handles all database operations for sessions
type SessionRepository struct {
	db *db.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(database *db.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

const sessionColumns = `id, assignment_id, worker_id, start_time,
	expiration_deadline, close_time, result_ref`

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var closeTime sql.NullTime
	err := row.Scan(&s.ID, &s.AssignmentID, &s.WorkerID, &s.StartTime,
		&s.ExpirationDeadline, &closeTime, &s.ResultRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if closeTime.Valid {
		t := closeTime.Time
		s.CloseTime = &t
	}
	return &s, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, q Queryer, sessionID string) (*models.Session, error) {
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	return scanSession(q.QueryRowContext(ctx, query, sessionID))
}

// LockByID retrieves a session and takes a row lock on it inside the
// given transaction.
func (r *SessionRepository) LockByID(ctx context.Context, tx *sql.Tx, sessionID string) (*models.Session, error) {
	query := r.db.Rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`) + r.db.ForUpdate()
	session, err := scanSession(tx.QueryRowContext(ctx, query, sessionID))
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return nil, translateError(err)
	}
	return session, err
}

// GetOpenForWorker returns the worker's open session, if any. At most one
// can exist; the partial unique index enforces that.
func (r *SessionRepository) GetOpenForWorker(ctx context.Context, q Queryer, workerID string) (*models.Session, error) {
	query := r.db.Rebind(`
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE worker_id = ? AND close_time IS NULL
	`)
	session, err := scanSession(q.QueryRowContext(ctx, query, workerID))
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil, nil
	}
	return session, err
}

// Create inserts a new open session. A unique-index violation means the
// worker already holds an open session and surfaces as ErrWorkerBusy.
func (r *SessionRepository) Create(ctx context.Context, q Queryer, s *models.Session) error {
	query := r.db.Rebind(`
		INSERT INTO sessions (id, assignment_id, worker_id, start_time,
		                      expiration_deadline, close_time, result_ref)
		VALUES (?, ?, ?, ?, ?, NULL, '')
	`)
	_, err := q.ExecContext(ctx, query,
		s.ID, s.AssignmentID, s.WorkerID, s.StartTime, s.ExpirationDeadline)
	if err != nil {
		return translateError(err)
	}
	return nil
}

// Close sets the close transition with a compare-and-set on the open
// state, so a session can only ever be closed once. Zero rows affected
// means it was already closed.
func (r *SessionRepository) Close(ctx context.Context, q Queryer, sessionID string, closeTime time.Time, resultRef string) error {
	query := r.db.Rebind(`
		UPDATE sessions
		SET close_time = ?, result_ref = ?
		WHERE id = ? AND close_time IS NULL
	`)
	res, err := q.ExecContext(ctx, query, closeTime, resultRef, sessionID)
	if err != nil {
		return translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAlreadyClosed
	}
	return nil
}

// Delete removes a session entirely. Used by cancel, which is a true
// retraction rather than a close.
func (r *SessionRepository) Delete(ctx context.Context, q Queryer, sessionID string) error {
	statsQuery := r.db.Rebind(`DELETE FROM session_stats WHERE session_id = ?`)
	if _, err := q.ExecContext(ctx, statsQuery, sessionID); err != nil {
		return translateError(err)
	}
	query := r.db.Rebind(`DELETE FROM sessions WHERE id = ?`)
	res, err := q.ExecContext(ctx, query, sessionID)
	if err != nil {
		return translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// ListResultRefs returns the stored result refs for an assignment, in
// session creation order. Input for the consensus merge.
func (r *SessionRepository) ListResultRefs(ctx context.Context, assignmentID string) ([]string, error) {
	query := r.db.Rebind(`
		SELECT result_ref
		FROM sessions
		WHERE assignment_id = ? AND result_ref <> ''
		ORDER BY start_time, id
	`)
	rows, err := r.db.GetConnection().QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list result refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CountResults returns the number of result-bearing sessions for an
// assignment.
func (r *SessionRepository) CountResults(ctx context.Context, q Queryer, assignmentID string) (int, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*) FROM sessions
		WHERE assignment_id = ? AND result_ref <> ''
	`)
	var n int
	if err := q.QueryRowContext(ctx, query, assignmentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// RecordStats upserts the derived per-session stats written on close.
func (r *SessionRepository) RecordStats(ctx context.Context, sessionID string, mileage int) error {
	del := r.db.Rebind(`DELETE FROM session_stats WHERE session_id = ?`)
	if _, err := r.db.GetConnection().ExecContext(ctx, del, sessionID); err != nil {
		return translateError(err)
	}
	ins := r.db.Rebind(`INSERT INTO session_stats (session_id, mileage) VALUES (?, ?)`)
	if _, err := r.db.GetConnection().ExecContext(ctx, ins, sessionID, mileage); err != nil {
		return translateError(err)
	}
	return nil
}

// GetMileage returns the recorded mileage for a session, or zero when no
// stats row exists.
func (r *SessionRepository) GetMileage(ctx context.Context, sessionID string) (int, error) {
	query := r.db.Rebind(`SELECT mileage FROM session_stats WHERE session_id = ?`)
	var mileage sql.NullInt64
	err := r.db.GetConnection().QueryRowContext(ctx, query, sessionID).Scan(&mileage)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get session stats: %w", err)
	}
	return int(mileage.Int64), nil
}
