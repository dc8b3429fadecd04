package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type RecurrenceType string

const (
	RecurDaily    RecurrenceType = "daily"
	RecurWeekly   RecurrenceType = "weekly"
	RecurBiweekly RecurrenceType = "biweekly"
	RecurMonthly  RecurrenceType = "monthly"
	RecurYearly   RecurrenceType = "yearly"
)

// NthWeekday selects the N-th occurrence of Weekday within a month.
// N == 5 means "last occurrence", whether the month has 4 or 5.
type NthWeekday struct {
	N       int `json:"n"`
	Weekday int `json:"weekday"` // 0 = Sunday
}

// Recurrence is the normalized form of a task's recurrence pattern. The
// wire format historically allowed three shapes: absent/empty string (not
// recurring), a bare interval tag ("daily", "weekly", ...), or a structured
// object. UnmarshalJSON folds all three into this struct so the rest of the
// code only ever branches on one shape. The zero value means not recurring.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	DaysOfWeek []int          `json:"days_of_week,omitempty"` // 0 = Sunday, sorted ascending
	DayOfMonth int            `json:"day_of_month,omitempty"`
	NthWeekday *NthWeekday    `json:"nth_weekday,omitempty"`
	DayOfYear  string         `json:"day_of_year,omitempty"` // "MM-DD"
}

// IsZero reports the not-recurring variant.
func (r Recurrence) IsZero() bool {
	return r.Type == "" && len(r.DaysOfWeek) == 0 && r.DayOfMonth == 0 &&
		r.NthWeekday == nil && r.DayOfYear == ""
}

func (r Recurrence) clone() Recurrence {
	c := r
	if r.DaysOfWeek != nil {
		c.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	}
	if r.NthWeekday != nil {
		nw := *r.NthWeekday
		c.NthWeekday = &nw
	}
	return c
}

// recurrenceAlias avoids marshaler recursion.
type recurrenceAlias Recurrence

// MarshalJSON writes the not-recurring variant as an empty string (the
// compact legacy wire form) and everything else as the structured object.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(recurrenceAlias(r))
}

// UnmarshalJSON accepts null, "", a legacy bare interval tag, or the
// structured object. An unknown tag is kept as-is; the recurrence engine
// treats it as unrecognized and the task simply stops recurring.
func (r *Recurrence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Recurrence{}
		return nil
	}

	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return fmt.Errorf("failed to unmarshal recurrence tag: %w", err)
		}
		if tag == "" {
			*r = Recurrence{}
			return nil
		}
		*r = Recurrence{Type: RecurrenceType(tag)}
		return nil
	}

	var alias recurrenceAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("failed to unmarshal recurrence object: %w", err)
	}
	*r = Recurrence(alias)
	return nil
}
