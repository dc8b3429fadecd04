package db

import (
	"context"
	"fmt"

	"github.com/ldi/tend/pkg/models"
)

// Bulk operations apply a sequence of independent single-task mutations.
// There is no transaction and no rollback: a failure partway leaves the
// earlier mutations applied and reports which task failed. Callers are
// expected to re-render afterwards either way.

// CompleteTasks completes each task in order and returns any recurring
// successors that were spawned.
func (db *DB) CompleteTasks(ctx context.Context, ids []string) ([]*models.Task, error) {
	var spawned []*models.Task
	for _, id := range ids {
		next, err := db.CompleteTask(ctx, id)
		if err != nil {
			return spawned, fmt.Errorf("bulk complete stopped at %s: %w", id, err)
		}
		if next != nil {
			spawned = append(spawned, next)
		}
	}
	return spawned, nil
}

// SetTasksStatus moves each task to the given status in order.
func (db *DB) SetTasksStatus(ctx context.Context, ids []string, status models.TaskStatus) error {
	for _, id := range ids {
		if err := db.SetTaskStatus(ctx, id, status); err != nil {
			return fmt.Errorf("bulk status change stopped at %s: %w", id, err)
		}
	}
	return nil
}

// DeleteTasks deletes each task in order.
func (db *DB) DeleteTasks(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := db.DeleteTask(ctx, id); err != nil {
			return fmt.Errorf("bulk delete stopped at %s: %w", id, err)
		}
	}
	return nil
}
