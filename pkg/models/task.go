package models

import "time"

type TaskType string

const (
	TaskTypeTask      TaskType = "task"
	TaskTypeProject   TaskType = "project"
	TaskTypeReference TaskType = "reference"
)

type TaskStatus string

const (
	TaskStatusInbox     TaskStatus = "inbox"
	TaskStatusNext      TaskStatus = "next"
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusSomeday   TaskStatus = "someday"
	TaskStatusCompleted TaskStatus = "completed"
)

type Energy string

const (
	EnergyHigh   Energy = "high"
	EnergyMedium Energy = "medium"
	EnergyLow    Energy = "low"
	EnergyNone   Energy = ""
)

// DateLayout is the wire format for calendar dates (no time-of-day).
const DateLayout = "2006-01-02"

type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task is the atomic unit of work. DueDate, DeferDate and RecurrenceEndDate
// are date-only strings in DateLayout; empty means unset.
type Task struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Type                  TaskType   `json:"type"`
	Status                TaskStatus `json:"status"`
	ProjectID             string     `json:"project_id,omitempty"`
	DueDate               string     `json:"due_date,omitempty"`
	DeferDate             string     `json:"defer_date,omitempty"`
	Completed             bool       `json:"completed"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	Recurrence            Recurrence `json:"recurrence"`
	RecurrenceEndDate     string     `json:"recurrence_end_date,omitempty"`
	RecurrenceParentID    string     `json:"recurrence_parent_id,omitempty"`
	WaitingForTaskIDs     []string   `json:"waiting_for_task_ids,omitempty"`
	WaitingForDescription string     `json:"waiting_for_description,omitempty"`
	Energy                Energy     `json:"energy,omitempty"`
	TimeEstimate          int        `json:"time_estimate,omitempty"`
	TimeSpent             int        `json:"time_spent,omitempty"`
	Contexts              []string   `json:"contexts,omitempty"`
	Subtasks              []Subtask  `json:"subtasks,omitempty"`
	Starred               bool       `json:"starred,omitempty"`
	Position              int        `json:"position,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsRecurring reports whether the task has any recurrence configured.
func (t *Task) IsRecurring() bool {
	return !t.Recurrence.IsZero()
}

// RecurrenceType returns the normalized interval tag, or "" if the task
// is not recurring.
func (t *Task) RecurrenceType() RecurrenceType {
	if !t.IsRecurring() {
		return ""
	}
	return t.Recurrence.Type
}

// MarkCompleted sets the completion triple (Completed, Status, CompletedAt)
// in one step so the three fields can never disagree.
func (t *Task) MarkCompleted(now time.Time) {
	t.Completed = true
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
}

// Reopen reverses MarkCompleted, moving the task to the given status.
// A completed or empty target status is rewritten to next.
func (t *Task) Reopen(status TaskStatus) {
	if status == TaskStatusCompleted || status == "" {
		status = TaskStatusNext
	}
	t.Completed = false
	t.Status = status
	t.CompletedAt = nil
}

// WaitsOn reports whether id is in the task's dependency list.
func (t *Task) WaitsOn(id string) bool {
	for _, dep := range t.WaitingForTaskIDs {
		if dep == id {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the due date is strictly before today.
// Completed tasks and tasks without a due date are never overdue.
func (t *Task) IsOverdue(today time.Time) bool {
	if t.Completed || t.DueDate == "" {
		return false
	}
	due, err := time.Parse(DateLayout, t.DueDate)
	if err != nil {
		return false
	}
	return due.Before(DateOnly(today))
}

// IsDueSoon reports whether the due date falls within the next days days,
// today included.
func (t *Task) IsDueSoon(today time.Time, days int) bool {
	if t.Completed || t.DueDate == "" {
		return false
	}
	due, err := time.Parse(DateLayout, t.DueDate)
	if err != nil {
		return false
	}
	d := DateOnly(today)
	return !due.Before(d) && !due.After(d.AddDate(0, 0, days))
}

// IsDeferred reports whether the task is hidden behind a future defer date.
func (t *Task) IsDeferred(today time.Time) bool {
	if t.DeferDate == "" {
		return false
	}
	deferred, err := time.Parse(DateLayout, t.DeferDate)
	if err != nil {
		return false
	}
	return deferred.After(DateOnly(today))
}

// Clone returns a deep copy; slices are copied so mutating the clone never
// touches the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	c.Recurrence = t.Recurrence.clone()
	if t.WaitingForTaskIDs != nil {
		c.WaitingForTaskIDs = append([]string(nil), t.WaitingForTaskIDs...)
	}
	if t.Contexts != nil {
		c.Contexts = append([]string(nil), t.Contexts...)
	}
	if t.Subtasks != nil {
		c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	return &c
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
