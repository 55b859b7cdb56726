package models

import "time"

// Term is an enrollment and billing period (e.g. Spring 2026).
type Term struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	Code             string     `db:"code" json:"code"`
	StartDate        time.Time  `db:"start_date" json:"start_date"`
	EndDate          time.Time  `db:"end_date" json:"end_date"`
	EnrollmentOpens  *time.Time `db:"enrollment_opens" json:"enrollment_opens,omitempty"`
	EnrollmentCloses *time.Time `db:"enrollment_closes" json:"enrollment_closes,omitempty"`
	Active           bool       `db:"active" json:"active"`
	Notes            string     `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Contains reports whether the date falls inside the term, inclusive.
func (t *Term) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(t.StartDate) && !d.After(t.EndDate)
}

// TermFilter defines filters supported by term list endpoints.
type TermFilter struct {
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
