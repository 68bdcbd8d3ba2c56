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

// AssignmentRepository handles all database operations for assignments.
type AssignmentRepository struct {
	db *db.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(database *db.DB) *AssignmentRepository {
	return &AssignmentRepository{db: database}
}

// CreateAssignment inserts an assignment row. The threshold and timeout
// are copied from the owning task at creation time and stay immutable.
func (r *AssignmentRepository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	query := r.db.Rebind(`
		INSERT INTO assignments (id, task_id, tile_ref, pre_seg_ref, merge_ref,
		                         min_results, timeout_seconds, workable,
		                         concluded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.GetConnection().ExecContext(ctx, query,
		a.ID, a.TaskID, a.TileRef, a.PreSegRef, a.MergeRef,
		a.MinResults, a.TimeoutSeconds, a.Workable, a.Concluded, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", translateError(err))
	}
	return nil
}

// GetByID retrieves an assignment with the owning task's published flag
// denormalized onto it.
func (r *AssignmentRepository) GetByID(ctx context.Context, q Queryer, assignmentID string) (*models.Assignment, error) {
	query := r.db.Rebind(`
		SELECT a.id, a.task_id, a.tile_ref, a.pre_seg_ref, a.merge_ref,
		       a.min_results, a.timeout_seconds, a.workable, a.concluded,
		       a.created_at, t.published
		FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.id = ?
	`)
	var a models.Assignment
	err := q.QueryRowContext(ctx, query, assignmentID).Scan(
		&a.ID, &a.TaskID, &a.TileRef, &a.PreSegRef, &a.MergeRef,
		&a.MinResults, &a.TimeoutSeconds, &a.Workable, &a.Concluded,
		&a.CreatedAt, &a.Published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// LockByID takes a row lock on the assignment inside the given
// transaction. Availability must be re-verified after the lock is held:
// the counts observed before the lock wait may be stale.
func (r *AssignmentRepository) LockByID(ctx context.Context, tx *sql.Tx, assignmentID string) error {
	query := r.db.Rebind(`SELECT id FROM assignments WHERE id = ?`) + r.db.ForUpdate()
	var id string
	err := tx.QueryRowContext(ctx, query, assignmentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrAssignmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock assignment: %w", translateError(err))
	}
	return nil
}

// AvailabilityCounts returns the session counts the availability formula
// needs, as of now, in a single snapshot read.
func (r *AssignmentRepository) AvailabilityCounts(ctx context.Context, q Queryer, assignmentID string, now time.Time) (models.AvailabilityCounts, error) {
	query := r.db.Rebind(`
		SELECT
			COUNT(CASE WHEN close_time IS NULL AND expiration_deadline >= ? THEN 1 END),
			COUNT(CASE WHEN result_ref <> '' THEN 1 END)
		FROM sessions
		WHERE assignment_id = ?
	`)
	var counts models.AvailabilityCounts
	err := q.QueryRowContext(ctx, query, now, assignmentID).Scan(
		&counts.ActiveSessions, &counts.ResultSessions)
	if err != nil {
		return counts, fmt.Errorf("failed to count sessions: %w", err)
	}
	return counts, nil
}

// FindAvailableIDs returns up to limit available assignment IDs the given
// worker has never had a session for, ordered by owning task creation
// time, ties broken by assignment id. The SQL mirrors
// models.Assignment.AvailableWith; candidates must still be re-checked
// under a row lock before a session is inserted.
func (r *AssignmentRepository) FindAvailableIDs(ctx context.Context, q Queryer, workerID string, now time.Time, limit int) ([]string, error) {
	query := r.db.Rebind(`
		SELECT a.id
		FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.workable = ?
		  AND t.published = ?
		  AND a.concluded = ?
		  AND NOT EXISTS (
			SELECT 1 FROM sessions s
			WHERE s.assignment_id = a.id AND s.worker_id = ?
		  )
		  AND (
			SELECT COUNT(*) FROM sessions s
			WHERE s.assignment_id = a.id
			  AND s.close_time IS NULL
			  AND s.expiration_deadline >= ?
		  ) < a.min_results - (
			SELECT COUNT(*) FROM sessions s
			WHERE s.assignment_id = a.id AND s.result_ref <> ''
		  )
		ORDER BY t.created_at ASC, a.id ASC
		LIMIT ?
	`)
	rows, err := q.QueryContext(ctx, query, true, true, false, workerID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query available assignments: %w", translateError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetConcluded flips the concluded flag false to true. The transition is
// monotonic: the guard makes a second conclude a no-op, and nothing ever
// writes it back to false.
func (r *AssignmentRepository) SetConcluded(ctx context.Context, q Queryer, assignmentID string) (bool, error) {
	query := r.db.Rebind(`
		UPDATE assignments SET concluded = ? WHERE id = ? AND concluded = ?
	`)
	res, err := q.ExecContext(ctx, query, true, assignmentID, false)
	if err != nil {
		return false, fmt.Errorf("failed to conclude assignment: %w", translateError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SetMergeRef records the stored consensus merge for an assignment.
func (r *AssignmentRepository) SetMergeRef(ctx context.Context, assignmentID, mergeRef string) error {
	query := r.db.Rebind(`UPDATE assignments SET merge_ref = ? WHERE id = ?`)
	_, err := r.db.GetConnection().ExecContext(ctx, query, mergeRef, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to set merge ref: %w", translateError(err))
	}
	return nil
}

// SetWorkable updates the tri-state workable flag. nil excludes the
// assignment from allocation the same way false does.
func (r *AssignmentRepository) SetWorkable(ctx context.Context, assignmentID string, workable *bool) error {
	query := r.db.Rebind(`UPDATE assignments SET workable = ? WHERE id = ?`)
	res, err := r.db.GetConnection().ExecContext(ctx, query, workable, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to set workable: %w", translateError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAssignmentNotFound
	}
	return nil
}

// SweepCandidates returns published, workable, non-concluded assignments
// whose result-bearing or still-active session count already reaches the
// threshold. This is the conservative reconciliation rule: it also counts
// sessions in flight, so it can conclude earlier than the event-triggered
// check, and both agree once in-flight sessions settle.
func (r *AssignmentRepository) SweepCandidates(ctx context.Context, now time.Time) ([]string, error) {
	query := r.db.Rebind(`
		SELECT a.id
		FROM assignments a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.workable = ?
		  AND t.published = ?
		  AND a.concluded = ?
		  AND (
			SELECT COUNT(*) FROM sessions s
			WHERE s.assignment_id = a.id
			  AND (s.result_ref <> ''
			       OR (s.close_time IS NULL AND s.expiration_deadline >= ?))
		  ) >= a.min_results
		ORDER BY a.id
	`)
	rows, err := r.db.GetConnection().QueryContext(ctx, query, true, true, false, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep candidates: %w", translateError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
