package models

import "time"

// Reference is non-actionable material kept for later lookup.
type Reference struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Contexts    []string  `json:"contexts,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
