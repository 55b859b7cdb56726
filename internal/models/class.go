package models

import (
	"fmt"
	"time"
)

// ClassStatus represents the lifecycle of a scheduled class.
type ClassStatus string

const (
	ClassStatusScheduled  ClassStatus = "SCHEDULED"
	ClassStatusInProgress ClassStatus = "IN_PROGRESS"
	ClassStatusCompleted  ClassStatus = "COMPLETED"
	ClassStatusCancelled  ClassStatus = "CANCELLED"
)

// ClassInstance is one scheduled occurrence of a ClassType within a Term,
// held weekly on a weekday within a [start, end) time window.
type ClassInstance struct {
	ID          string      `db:"id" json:"id"`
	ClassTypeID string      `db:"class_type_id" json:"class_type_id"`
	TermID      string      `db:"term_id" json:"term_id"`
	TeacherID   *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	DayOfWeek   int         `db:"day_of_week" json:"day_of_week"`
	StartTime   string      `db:"start_time" json:"start_time"`
	EndTime     string      `db:"end_time" json:"end_time"`
	Room        string      `db:"room" json:"room"`
	MaxStudents int         `db:"max_students" json:"max_students"`
	Status      ClassStatus `db:"status" json:"status"`
	Notes       string      `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassDetail enriches ClassInstance with catalog and term context needed by
// the enrollment gates.
type ClassDetail struct {
	ClassInstance
	ClassTypeName string    `db:"class_type_name" json:"class_type_name"`
	Level         string    `db:"level" json:"level"`
	MinAge        int       `db:"min_age" json:"min_age"`
	MaxAge        *int      `db:"max_age" json:"max_age,omitempty"`
	GenreID       string    `db:"genre_id" json:"genre_id"`
	GenreName     string    `db:"genre_name" json:"genre_name"`
	TermName      string    `db:"term_name" json:"term_name"`
	TermStart     time.Time `db:"term_start" json:"term_start"`
	TermEnd       time.Time `db:"term_end" json:"term_end"`
}

// MinuteOfDay parses a HH:MM clock value into minutes since midnight.
func MinuteOfDay(clock string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", clock)
	}
	return h*60 + m, nil
}

// TimeRangesOverlap reports whether two half-open [start, end) minute ranges
// intersect.
func TimeRangesOverlap(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// ClassFilter provides filters for listing class instances.
type ClassFilter struct {
	TermID      string
	ClassTypeID string
	GenreID     string
	TeacherID   string
	DayOfWeek   *int
	Status      ClassStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
