package db

import (
	"context"
	"strings"
	"testing"

	"github.com/ldi/tend/pkg/models"
)

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. Create Task
	task := &models.Task{
		Title:       "Write report",
		Description: "Quarterly numbers",
		Contexts:    []string{"office", "computer"},
		Energy:      models.EnergyHigh,
		Subtasks:    []models.Subtask{{Title: "gather data"}, {Title: "draft"}},
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 {
		t.Errorf("Expected ID length 36, got %d (%s)", len(task.ID), task.ID)
	}
	if !strings.Contains(task.ID, "-") {
		t.Errorf("Expected ID to contain dashes, got %s", task.ID)
	}
	if task.Status != models.TaskStatusInbox {
		t.Errorf("Expected new task to default to inbox, got %s", task.Status)
	}
	if task.Type != models.TaskTypeTask {
		t.Errorf("Expected type task, got %s", task.Type)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Expected CreatedAt and UpdatedAt to be set")
	}

	// 2. Get Task
	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched == nil {
		t.Fatalf("Task not found")
	}
	if fetched.Title != task.Title {
		t.Errorf("Expected title %s, got %s", task.Title, fetched.Title)
	}
	if len(fetched.Contexts) != 2 || fetched.Contexts[0] != "office" {
		t.Errorf("Contexts not round-tripped: %v", fetched.Contexts)
	}
	if len(fetched.Subtasks) != 2 {
		t.Errorf("Subtasks not round-tripped: %v", fetched.Subtasks)
	}
	if fetched.Completed {
		t.Errorf("Expected new task to be incomplete")
	}
	if fetched.CompletedAt != nil {
		t.Errorf("Expected nil CompletedAt on new task")
	}

	// 3. Get missing task
	missing, err := db.GetTask(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("Unexpected error for missing task: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing task")
	}

	// 4. Update Task
	task.Title = "Write annual report"
	task.DueDate = "2025-09-01"
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Title != "Write annual report" {
		t.Errorf("Expected updated title, got %s", fetched.Title)
	}
	if fetched.DueDate != "2025-09-01" {
		t.Errorf("Expected due date 2025-09-01, got %s", fetched.DueDate)
	}

	// 5. Delete Task
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched != nil {
		t.Errorf("Expected task gone after delete")
	}
	if err := db.DeleteTask(ctx, task.ID); err == nil {
		t.Errorf("Expected error deleting missing task")
	}
}

func TestCreateTaskGTDRules(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. A project attachment promotes inbox to next.
	project := &models.Project{Title: "Garden"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	withProject := &models.Task{Title: "buy seeds", ProjectID: project.ID}
	if err := db.CreateTask(ctx, withProject); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if withProject.Status != models.TaskStatusNext {
		t.Errorf("Expected project task promoted to next, got %s", withProject.Status)
	}

	// 2. An explicit status is respected.
	someday := &models.Task{Title: "greenhouse", ProjectID: project.ID, Status: models.TaskStatusSomeday}
	if err := db.CreateTask(ctx, someday); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if someday.Status != models.TaskStatusSomeday {
		t.Errorf("Expected someday preserved, got %s", someday.Status)
	}

	// 3. Dependencies at create time move next to waiting.
	blocker := &models.Task{Title: "order compost"}
	if err := db.CreateTask(ctx, blocker); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}
	waiter := &models.Task{
		Title:             "spread compost",
		ProjectID:         project.ID,
		WaitingForTaskIDs: []string{blocker.ID},
	}
	if err := db.CreateTask(ctx, waiter); err != nil {
		t.Fatalf("Failed to create waiter: %v", err)
	}
	if waiter.Status != models.TaskStatusWaiting {
		t.Errorf("Expected dependent task moved to waiting, got %s", waiter.Status)
	}

	fetched, _ := db.GetTask(ctx, waiter.ID)
	if len(fetched.WaitingForTaskIDs) != 1 || fetched.WaitingForTaskIDs[0] != blocker.ID {
		t.Errorf("Dependency edge not persisted: %v", fetched.WaitingForTaskIDs)
	}

	// 4. Self-dependency is rejected.
	selfish := &models.Task{Title: "loop"}
	selfish.ID = "fixed-id"
	selfish.WaitingForTaskIDs = []string{"fixed-id"}
	if err := db.CreateTask(ctx, selfish); err == nil {
		t.Errorf("Expected error for self-dependency")
	}
}

func TestUpdateTaskProjectPromotion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	project := &models.Project{Title: "Move"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	task := &models.Task{Title: "pack boxes"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.Status != models.TaskStatusInbox {
		t.Fatalf("Expected inbox, got %s", task.Status)
	}

	task.ProjectID = project.ID
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}

	fetched, _ := db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusNext {
		t.Errorf("Expected inbox task promoted to next on project attach, got %s", fetched.Status)
	}
}

func TestSetTaskStatusKeepsTripleConsistent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "triple check"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	// 1. Completing via status sets all three fields.
	if err := db.SetTaskStatus(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	fetched, _ := db.GetTask(ctx, task.ID)
	if !fetched.Completed || fetched.Status != models.TaskStatusCompleted || fetched.CompletedAt == nil {
		t.Errorf("Completion triple inconsistent: completed=%v status=%s completedAt=%v",
			fetched.Completed, fetched.Status, fetched.CompletedAt)
	}

	// 2. Reopening clears all three.
	if err := db.SetTaskStatus(ctx, task.ID, models.TaskStatusNext); err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Completed || fetched.Status != models.TaskStatusNext || fetched.CompletedAt != nil {
		t.Errorf("Reopen triple inconsistent: completed=%v status=%s completedAt=%v",
			fetched.Completed, fetched.Status, fetched.CompletedAt)
	}

	// 3. Unknown task errors.
	if err := db.SetTaskStatus(ctx, "no-such-id", models.TaskStatusNext); err == nil {
		t.Errorf("Expected error for missing task")
	}
}

func TestCompleteTaskSpawnsRecurringInstance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{
		Title:      "water plants",
		Status:     models.TaskStatusNext,
		DueDate:    "2025-03-15",
		Recurrence: models.Recurrence{Type: models.RecurDaily},
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	next, err := db.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}
	if next == nil {
		t.Fatal("Expected a spawned successor for a recurring task")
	}
	if next.DueDate != "2025-03-16" {
		t.Errorf("Expected successor due 2025-03-16, got %s", next.DueDate)
	}
	if next.RecurrenceParentID != task.ID {
		t.Errorf("Expected successor parent %s, got %s", task.ID, next.RecurrenceParentID)
	}
	if next.Status != models.TaskStatusNext {
		t.Errorf("Expected successor status next, got %s", next.Status)
	}

	// The original is kept as completed history.
	original, _ := db.GetTask(ctx, task.ID)
	if !original.Completed || original.CompletedAt == nil {
		t.Errorf("Expected original retained as completed")
	}

	// The successor is persisted.
	stored, _ := db.GetTask(ctx, next.ID)
	if stored == nil {
		t.Fatal("Successor not persisted")
	}
	if stored.Completed {
		t.Errorf("Expected successor incomplete")
	}

	// Completing an already-completed task is a no-op.
	again, err := db.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Unexpected error completing twice: %v", err)
	}
	if again != nil {
		t.Errorf("Expected no successor on repeat completion")
	}
}

func TestCompleteTaskSuccessorKeepsStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{
		Title:      "review reading list",
		Status:     models.TaskStatusSomeday,
		DueDate:    "2025-03-15",
		Recurrence: models.Recurrence{Type: models.RecurDaily},
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	// The successor inherits the status the task held before completion,
	// not the completed status written by CompleteTask.
	next, err := db.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}
	if next == nil {
		t.Fatal("Expected a spawned successor")
	}
	if next.Status != models.TaskStatusSomeday {
		t.Errorf("Expected successor to keep pre-completion status someday, got %s", next.Status)
	}

	stored, _ := db.GetTask(ctx, next.ID)
	if stored.Status != models.TaskStatusSomeday {
		t.Errorf("Expected persisted successor status someday, got %s", stored.Status)
	}
}

func TestCompleteTaskNonRecurring(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "one-off"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	next, err := db.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}
	if next != nil {
		t.Errorf("Expected no successor for a non-recurring task")
	}
}

func TestCompleteTaskEndedRecurrence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{
		Title:             "old habit",
		DueDate:           "2020-01-01",
		Recurrence:        models.Recurrence{Type: models.RecurDaily},
		RecurrenceEndDate: "2020-02-01",
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	next, err := db.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}
	if next != nil {
		t.Errorf("Expected no successor after the recurrence end date")
	}
}

func TestListTasksFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	project := &models.Project{Title: "Home"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	tasks := []*models.Task{
		{Title: "inbox thing"},
		{Title: "house thing", ProjectID: project.ID, Contexts: []string{"home"}},
		{Title: "someday thing", Status: models.TaskStatusSomeday, Contexts: []string{"home", "weekend"}},
	}
	for _, task := range tasks {
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	all, err := db.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 tasks, got %d", len(all))
	}

	inbox := models.TaskStatusInbox
	got, _ := db.ListTasks(ctx, TaskFilter{Status: &inbox})
	if len(got) != 1 || got[0].Title != "inbox thing" {
		t.Errorf("Status filter wrong: %v", got)
	}

	got, _ = db.ListTasks(ctx, TaskFilter{ProjectID: &project.ID})
	if len(got) != 1 || got[0].Title != "house thing" {
		t.Errorf("Project filter wrong: %v", got)
	}

	home := "home"
	got, _ = db.ListTasks(ctx, TaskFilter{Context: &home})
	if len(got) != 2 {
		t.Errorf("Context filter expected 2 tasks, got %d", len(got))
	}

	weekend := "week"
	got, _ = db.ListTasks(ctx, TaskFilter{Context: &weekend})
	if len(got) != 0 {
		t.Errorf("Partial context tag should not match, got %d", len(got))
	}
}

func TestRecurrenceColumnLegacyTag(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "legacy", Recurrence: models.Recurrence{Type: models.RecurWeekly}}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	// Simulate a row written before recurrence was structured.
	if _, err := db.ExecContext(ctx, `UPDATE tasks SET recurrence = 'daily' WHERE id = ?`, task.ID); err != nil {
		t.Fatalf("Failed to write legacy column: %v", err)
	}

	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched.Recurrence.Type != models.RecurDaily {
		t.Errorf("Expected legacy tag normalized to daily, got %q", fetched.Recurrence.Type)
	}
}
