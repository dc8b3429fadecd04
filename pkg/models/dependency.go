package models

// Dependency is one "TaskID waits for WaitsForTaskID" edge, used by the
// snapshot format and dependency listings.
type Dependency struct {
	TaskID         string `json:"task_id"`
	WaitsForTaskID string `json:"waits_for_task_id"`
}
