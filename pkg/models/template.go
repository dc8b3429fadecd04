package models

import "time"

// Template is a reusable task blueprint. Instantiation produces a fresh
// inbox task with the template's defaults and uncompleted subtasks.
type Template struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Energy       Energy    `json:"energy,omitempty"`
	TimeEstimate int       `json:"time_estimate,omitempty"`
	Contexts     []string  `json:"contexts,omitempty"`
	Subtasks     []Subtask `json:"subtasks,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Instantiate builds a new task from the template. The caller assigns the
// ID (or leaves it for the store to generate).
func (tp *Template) Instantiate() *Task {
	t := &Task{
		Title:        tp.Title,
		Description:  tp.Description,
		Type:         TaskTypeTask,
		Status:       TaskStatusInbox,
		Energy:       tp.Energy,
		TimeEstimate: tp.TimeEstimate,
	}
	if tp.Contexts != nil {
		t.Contexts = append([]string(nil), tp.Contexts...)
	}
	for _, st := range tp.Subtasks {
		t.Subtasks = append(t.Subtasks, Subtask{Title: st.Title})
	}
	return t
}
