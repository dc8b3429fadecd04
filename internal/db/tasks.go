package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/tend/internal/recur"
	"github.com/ldi/tend/pkg/models"
)

const taskColumns = `id, title, description, type, status, project_id, due_date, defer_date,
	       completed, completed_at, recurrence, recurrence_end_date, recurrence_parent_id,
	       waiting_for_description, energy, time_estimate, time_spent, contexts, subtasks,
	       starred, position, created_at, updated_at`

// TaskFilter narrows ListTasks. Nil fields match everything.
type TaskFilter struct {
	Status    *models.TaskStatus
	ProjectID *string
	Context   *string
	Type      *models.TaskType
}

// CreateTask inserts a new task. If t.ID is empty, a new UUID is generated.
// An inbox task created with a project attached is promoted to next.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if err := db.createTask(ctx, db.DB, t); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Type == "" {
		t.Type = models.TaskTypeTask
	}
	if t.Status == "" {
		t.Status = models.TaskStatusInbox
	}
	if t.WaitsOn(t.ID) {
		return fmt.Errorf("task cannot wait on itself: %s", t.ID)
	}
	applyGTDRules(t)

	recurrence, err := encodeRecurrence(t.Recurrence)
	if err != nil {
		return err
	}
	contexts, err := encodeJSONList(t.Contexts)
	if err != nil {
		return err
	}
	subtasks, err := encodeSubtasks(t.Subtasks)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (
			id, title, description, type, status, project_id, due_date, defer_date,
			completed, completed_at, recurrence, recurrence_end_date, recurrence_parent_id,
			waiting_for_description, energy, time_estimate, time_spent, contexts, subtasks,
			starred, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = exec.QueryRowContext(ctx, query,
		t.ID, t.Title, t.Description, t.Type, t.Status, t.ProjectID, t.DueDate, t.DeferDate,
		boolToInt(t.Completed), t.CompletedAt, recurrence, t.RecurrenceEndDate, t.RecurrenceParentID,
		t.WaitingForDescription, t.Energy, t.TimeEstimate, t.TimeSpent, contexts, subtasks,
		boolToInt(t.Starred), t.Position,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	for _, dep := range t.WaitingForTaskIDs {
		if err := db.createDependency(ctx, exec, t.ID, dep); err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves a task by its ID, nil if not found.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := db.attachDependencies(ctx, []*models.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, ordered by manual position
// then creation time.
func (db *DB) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, *filter.Type)
	}
	if filter.Context != nil {
		query += ` AND contexts LIKE '%"' || ? || '"%'`
		args = append(args, *filter.Context)
	}

	query += " ORDER BY position ASC, created_at ASC"

	return db.queryTasks(ctx, query, args...)
}

// ReadyTasks returns incomplete tasks whose dependencies are all completed.
func (db *DB) ReadyTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM v_ready_tasks ORDER BY position ASC, created_at ASC`
	return db.queryTasks(ctx, query)
}

// CountReadyTasks returns the number of tasks that are ready to work on.
func (db *DB) CountReadyTasks(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM v_ready_tasks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ready tasks: %w", err)
	}
	return count, nil
}

// UpdateTask updates an existing task's editable fields. Completion state
// is owned by CompleteTask/SetTaskStatus and is not touched here. Attaching
// a project to an inbox task promotes it to next.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	current, err := db.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("task not found: %s", t.ID)
	}

	if current.ProjectID == "" && t.ProjectID != "" && t.Status == models.TaskStatusInbox {
		t.Status = models.TaskStatusNext
	}

	recurrence, err := encodeRecurrence(t.Recurrence)
	if err != nil {
		return err
	}
	contexts, err := encodeJSONList(t.Contexts)
	if err != nil {
		return err
	}
	subtasks, err := encodeSubtasks(t.Subtasks)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = ?, description = ?, type = ?, status = ?, project_id = ?, due_date = ?,
		    defer_date = ?, recurrence = ?, recurrence_end_date = ?, waiting_for_description = ?,
		    energy = ?, time_estimate = ?, time_spent = ?, contexts = ?, subtasks = ?,
		    starred = ?, position = ?
		WHERE id = ?
		RETURNING updated_at
	`
	err = db.QueryRowContext(ctx, query,
		t.Title, t.Description, t.Type, t.Status, t.ProjectID, t.DueDate,
		t.DeferDate, recurrence, t.RecurrenceEndDate, t.WaitingForDescription,
		t.Energy, t.TimeEstimate, t.TimeSpent, contexts, subtasks,
		boolToInt(t.Starred), t.Position, t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// SetTaskStatus moves a task between GTD statuses, keeping the completion
// triple (status, completed, completed_at) consistent in a single write.
func (db *DB) SetTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	t, err := db.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", id)
	}

	if status == models.TaskStatusCompleted {
		t.MarkCompleted(time.Now().UTC())
	} else {
		t.Reopen(status)
	}

	query := `
		UPDATE tasks
		SET status = ?, completed = ?, completed_at = ?
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, t.Status, boolToInt(t.Completed), t.CompletedAt, id); err != nil {
		return fmt.Errorf("failed to set task status: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// CompleteTask soft-completes a task and, when it recurs and recurrence has
// not ended, inserts and returns the next instance. The completed original
// is retained as history. Returns nil when no successor was spawned.
func (db *DB) CompleteTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := db.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if t.Completed {
		return nil, nil
	}

	// Synthesize the successor before marking completion: it inherits the
	// task's pre-completion status.
	now := time.Now().UTC()
	next := recur.NextInstance(t, now)
	t.MarkCompleted(now)

	query := `
		UPDATE tasks
		SET status = ?, completed = 1, completed_at = ?
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, models.TaskStatusCompleted, now, id); err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	if next != nil {
		if err := db.createTask(ctx, db.DB, next); err != nil {
			return nil, fmt.Errorf("failed to create recurring instance: %w", err)
		}
	}

	db.triggerChange(ctx)
	return next, nil
}

// DeleteTask deletes a task and its own outgoing dependency edges. Edges
// other tasks hold toward it are left dangling so those tasks stay blocked.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM dependencies WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task dependencies: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// queryTasks executes a query selecting taskColumns and attaches each
// task's dependency list.
func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := db.attachDependencies(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// attachDependencies fills WaitingForTaskIDs from the dependencies table.
func (db *DB) attachDependencies(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	rows, err := db.QueryContext(ctx, `SELECT task_id, waits_for_task_id FROM dependencies ORDER BY rowid ASC`)
	if err != nil {
		return fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var taskID, waitsFor string
		if err := rows.Scan(&taskID, &waitsFor); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		edges[taskID] = append(edges[taskID], waitsFor)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	for _, t := range tasks {
		t.WaitingForTaskIDs = edges[t.ID]
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	t := &models.Task{}
	var completed, starred int
	var recurrence, contexts, subtasks string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Type, &t.Status, &t.ProjectID, &t.DueDate, &t.DeferDate,
		&completed, &t.CompletedAt, &recurrence, &t.RecurrenceEndDate, &t.RecurrenceParentID,
		&t.WaitingForDescription, &t.Energy, &t.TimeEstimate, &t.TimeSpent, &contexts, &subtasks,
		&starred, &t.Position, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	t.Starred = starred == 1
	t.Recurrence = decodeRecurrence(recurrence)
	if err := decodeJSONInto(contexts, &t.Contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts: %w", err)
	}
	if err := decodeJSONInto(subtasks, &t.Subtasks); err != nil {
		return nil, fmt.Errorf("failed to decode subtasks: %w", err)
	}
	return t, nil
}

// applyGTDRules applies the two lifecycle auto-rules at creation time:
// a project attachment promotes inbox to next, and dependencies put a
// next/someday task into waiting.
func applyGTDRules(t *models.Task) {
	if t.ProjectID != "" && t.Status == models.TaskStatusInbox {
		t.Status = models.TaskStatusNext
	}
	if len(t.WaitingForTaskIDs) > 0 &&
		(t.Status == models.TaskStatusNext || t.Status == models.TaskStatusSomeday) {
		t.Status = models.TaskStatusWaiting
	}
}

func encodeRecurrence(r models.Recurrence) (string, error) {
	if r.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode recurrence: %w", err)
	}
	return string(data), nil
}

// decodeRecurrence tolerates the legacy bare-tag column value as well as
// the structured JSON form; anything unreadable means not recurring.
func decodeRecurrence(s string) models.Recurrence {
	if s == "" {
		return models.Recurrence{}
	}
	var r models.Recurrence
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return models.Recurrence{Type: models.RecurrenceType(s)}
	}
	return r
}

func encodeJSONList(list []string) (string, error) {
	if list == nil {
		return "[]", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func encodeSubtasks(subtasks []models.Subtask) (string, error) {
	if subtasks == nil {
		return "[]", nil
	}
	data, err := json.Marshal(subtasks)
	if err != nil {
		return "", fmt.Errorf("failed to encode subtasks: %w", err)
	}
	return string(data), nil
}

func decodeJSONInto(s string, dest any) error {
	if s == "" || s == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(s), dest)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
