package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crowdseg-service/src/db"
	"crowdseg-service/src/models"
)

// TaskRepository handles database operations for tasks. Task rows are
// created by the tiling pipeline and mostly read here.
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// CreateTask inserts a task row.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	query := r.db.Rebind(`
		INSERT INTO tasks (id, name, published, algorithm, tile_dimension,
		                   tile_border, min_results_per_assignment,
		                   timeout_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.GetConnection().ExecContext(ctx, query,
		task.ID, task.Name, task.Published, task.Algorithm,
		task.TileDimension, task.TileBorder, task.MinResultsPerAssignment,
		task.TimeoutSeconds, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", translateError(err))
	}
	return nil
}

// GetTaskByID retrieves a task by its ID.
func (r *TaskRepository) GetTaskByID(ctx context.Context, taskID string) (*models.Task, error) {
	query := r.db.Rebind(`
		SELECT id, name, published, algorithm, tile_dimension, tile_border,
		       min_results_per_assignment, timeout_seconds, created_at
		FROM tasks
		WHERE id = ?
	`)
	var task models.Task
	err := r.db.GetConnection().QueryRowContext(ctx, query, taskID).Scan(
		&task.ID, &task.Name, &task.Published, &task.Algorithm,
		&task.TileDimension, &task.TileBorder, &task.MinResultsPerAssignment,
		&task.TimeoutSeconds, &task.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// SetPublished flips the published flag for a task. Unpublishing a task
// takes its assignments out of allocation; open sessions are reclaimed
// on the worker's next poll.
func (r *TaskRepository) SetPublished(ctx context.Context, taskID string, published bool) error {
	query := r.db.Rebind(`UPDATE tasks SET published = ? WHERE id = ?`)
	res, err := r.db.GetConnection().ExecContext(ctx, query, published, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", translateError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}
