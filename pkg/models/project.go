package models

import "time"

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusSomeday   ProjectStatus = "someday"
	ProjectStatusCompleted ProjectStatus = "completed"
)

// Project groups tasks; it carries no recurrence or dependency semantics of
// its own and participates in the graph only as a filter key via
// Task.ProjectID.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	Contexts    []string      `json:"contexts,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
