package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkCompletedAndReopen(t *testing.T) {
	task := &Task{Status: TaskStatusNext}
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	task.MarkCompleted(now)
	assert.True(t, task.Completed)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	if assert.NotNil(t, task.CompletedAt) {
		assert.Equal(t, now, *task.CompletedAt)
	}

	task.Reopen(TaskStatusSomeday)
	assert.False(t, task.Completed)
	assert.Equal(t, TaskStatusSomeday, task.Status)
	assert.Nil(t, task.CompletedAt)
}

func TestReopenRewritesInvalidTarget(t *testing.T) {
	task := &Task{}
	task.MarkCompleted(time.Now())

	task.Reopen(TaskStatusCompleted)
	assert.Equal(t, TaskStatusNext, task.Status)
	assert.False(t, task.Completed)

	task.MarkCompleted(time.Now())
	task.Reopen("")
	assert.Equal(t, TaskStatusNext, task.Status)
}

func TestIsOverdue(t *testing.T) {
	today := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)

	assert.True(t, (&Task{DueDate: "2025-06-09"}).IsOverdue(today))
	assert.False(t, (&Task{DueDate: "2025-06-10"}).IsOverdue(today), "due today is not overdue")
	assert.False(t, (&Task{DueDate: "2025-06-11"}).IsOverdue(today))
	assert.False(t, (&Task{}).IsOverdue(today))
	assert.False(t, (&Task{DueDate: "2025-06-09", Completed: true}).IsOverdue(today))
	assert.False(t, (&Task{DueDate: "not-a-date"}).IsOverdue(today))
}

func TestIsDueSoon(t *testing.T) {
	today := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)

	assert.True(t, (&Task{DueDate: "2025-06-10"}).IsDueSoon(today, 3))
	assert.True(t, (&Task{DueDate: "2025-06-13"}).IsDueSoon(today, 3))
	assert.False(t, (&Task{DueDate: "2025-06-14"}).IsDueSoon(today, 3))
	assert.False(t, (&Task{DueDate: "2025-06-09"}).IsDueSoon(today, 3), "overdue is not due soon")
}

func TestIsDeferred(t *testing.T) {
	today := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)

	assert.True(t, (&Task{DeferDate: "2025-06-11"}).IsDeferred(today))
	assert.False(t, (&Task{DeferDate: "2025-06-10"}).IsDeferred(today), "defer date today is visible")
	assert.False(t, (&Task{}).IsDeferred(today))
}

func TestClone(t *testing.T) {
	at := time.Now()
	orig := &Task{
		ID:                "t1",
		CompletedAt:       &at,
		Recurrence:        Recurrence{Type: RecurWeekly, DaysOfWeek: []int{1, 5}},
		WaitingForTaskIDs: []string{"a", "b"},
		Contexts:          []string{"home"},
		Subtasks:          []Subtask{{Title: "step one"}},
	}

	c := orig.Clone()
	c.WaitingForTaskIDs[0] = "changed"
	c.Recurrence.DaysOfWeek[0] = 3
	c.Subtasks[0].Completed = true
	*c.CompletedAt = at.Add(time.Hour)

	assert.Equal(t, "a", orig.WaitingForTaskIDs[0])
	assert.Equal(t, 1, orig.Recurrence.DaysOfWeek[0])
	assert.False(t, orig.Subtasks[0].Completed)
	assert.Equal(t, at, *orig.CompletedAt)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	orig := Task{
		ID:                    "t1",
		Title:                 "water plants",
		Description:           "the ones on the balcony",
		Type:                  TaskTypeTask,
		Status:                TaskStatusWaiting,
		ProjectID:             "p1",
		DueDate:               "2025-03-20",
		DeferDate:             "2025-03-18",
		Completed:             true,
		CompletedAt:           &at,
		Recurrence:            Recurrence{Type: RecurWeekly, DaysOfWeek: []int{1, 5}},
		RecurrenceEndDate:     "2025-12-31",
		RecurrenceParentID:    "t0",
		WaitingForTaskIDs:     []string{"a", "b"},
		WaitingForDescription: "blocked on repotting",
		Energy:                EnergyLow,
		TimeEstimate:          15,
		TimeSpent:             5,
		Contexts:              []string{"home", "garden"},
		Subtasks:              []Subtask{{Title: "fill can", Completed: true}, {Title: "water"}},
		Starred:               true,
		Position:              3,
		CreatedAt:             at.Add(-48 * time.Hour),
		UpdatedAt:             at,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestWaitsOn(t *testing.T) {
	task := &Task{WaitingForTaskIDs: []string{"a", "b"}}
	assert.True(t, task.WaitsOn("a"))
	assert.False(t, task.WaitsOn("c"))
}
