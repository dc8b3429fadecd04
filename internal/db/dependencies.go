package db

import (
	"context"
	"fmt"

	"github.com/ldi/tend/pkg/models"
)

// AddDependency records that taskID waits for waitsForTaskID. A next or
// someday task gains its first dependency and moves to waiting; the reverse
// promotion is left to the user (computed readiness is a separate concept
// from the stored GTD status).
func (db *DB) AddDependency(ctx context.Context, taskID, waitsForTaskID string) error {
	if taskID == waitsForTaskID {
		return fmt.Errorf("task cannot wait on itself: %s", taskID)
	}

	t, err := db.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", taskID)
	}

	if err := db.createDependency(ctx, db.DB, taskID, waitsForTaskID); err != nil {
		return err
	}

	if t.Status == models.TaskStatusNext || t.Status == models.TaskStatusSomeday {
		if _, err := db.ExecContext(ctx,
			`UPDATE tasks SET status = ? WHERE id = ?`,
			models.TaskStatusWaiting, taskID,
		); err != nil {
			return fmt.Errorf("failed to move task to waiting: %w", err)
		}
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createDependency(ctx context.Context, exec executor, taskID, waitsForTaskID string) error {
	if taskID == waitsForTaskID {
		return fmt.Errorf("task cannot wait on itself: %s", taskID)
	}
	query := `INSERT OR IGNORE INTO dependencies (task_id, waits_for_task_id) VALUES (?, ?)`
	if _, err := exec.ExecContext(ctx, query, taskID, waitsForTaskID); err != nil {
		return fmt.Errorf("failed to create dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes the edge taskID -> waitsForTaskID.
func (db *DB) RemoveDependency(ctx context.Context, taskID, waitsForTaskID string) error {
	query := `DELETE FROM dependencies WHERE task_id = ? AND waits_for_task_id = ?`
	res, err := db.ExecContext(ctx, query, taskID, waitsForTaskID)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dependency not found: %s -> %s", taskID, waitsForTaskID)
	}

	db.triggerChange(ctx)
	return nil
}

// GetDependencies returns the tasks that taskID waits for. Dangling edges
// (a deleted blocker) have no row to return and are skipped here; readiness
// checks still count them as blocking.
func (db *DB) GetDependencies(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id IN (SELECT waits_for_task_id FROM dependencies WHERE task_id = ?)
		ORDER BY position ASC, created_at ASC
	`
	return db.queryTasks(ctx, query, taskID)
}

// GetDependents returns the tasks that wait for taskID.
func (db *DB) GetDependents(ctx context.Context, taskID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id IN (SELECT task_id FROM dependencies WHERE waits_for_task_id = ?)
		ORDER BY position ASC, created_at ASC
	`
	return db.queryTasks(ctx, query, taskID)
}

// ListDependencies returns every edge, in insertion order.
func (db *DB) ListDependencies(ctx context.Context) ([]*models.Dependency, error) {
	rows, err := db.QueryContext(ctx, `SELECT task_id, waits_for_task_id FROM dependencies ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*models.Dependency
	for rows.Next() {
		d := &models.Dependency{}
		if err := rows.Scan(&d.TaskID, &d.WaitsForTaskID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return deps, nil
}
