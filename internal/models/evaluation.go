package models

import (
	"strconv"
	"time"
)

// EvaluationStatus represents the stored state of an evaluation.
type EvaluationStatus string

const (
	EvaluationStatusPending   EvaluationStatus = "PENDING"
	EvaluationStatusCompleted EvaluationStatus = "COMPLETED"
	EvaluationStatusExpired   EvaluationStatus = "EXPIRED"
)

// Evaluation records a student's assessed skill level for a genre. At most
// one completed, unexpired evaluation exists per (student, genre) pair.
type Evaluation struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	GenreID        string           `db:"genre_id" json:"genre_id"`
	LevelAchieved  string           `db:"level_achieved" json:"level_achieved"`
	Status         EvaluationStatus `db:"status" json:"status"`
	EvaluationDate time.Time        `db:"evaluation_date" json:"evaluation_date"`
	ValidUntil     *time.Time       `db:"valid_until" json:"valid_until,omitempty"`
	EvaluatedByID  string           `db:"evaluated_by_id" json:"evaluated_by_id"`
	Notes          string           `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// ActiveAt reports eligibility as of the given date. The stored status is
// never trusted alone: an evaluation past its valid_until is expired even if
// the row still says completed.
func (e *Evaluation) ActiveAt(at time.Time) bool {
	if e.Status != EvaluationStatusCompleted {
		return false
	}
	if e.ValidUntil == nil {
		return true
	}
	return !e.ValidUntil.Before(at.Truncate(24 * time.Hour))
}

// EvaluationDetail enriches Evaluation with display context.
type EvaluationDetail struct {
	Evaluation
	StudentName   string `db:"student_name" json:"student_name"`
	GenreName     string `db:"genre_name" json:"genre_name"`
	EvaluatorName string `db:"evaluator_name" json:"evaluator_name"`
}

// namedLevelRanks is the fixed ordinal table for named level labels.
var namedLevelRanks = map[string]int{
	"beginner":         1,
	"elementary":       2,
	"intermediate":     3,
	"advanced":         4,
	"pre_professional": 5,
}

// LevelRank maps a level label onto a total order. Numeric labels compare
// numerically; named labels use the fixed ordinal table. The second return
// is false for unknown labels.
func LevelRank(label string) (int, bool) {
	if n, err := strconv.Atoi(label); err == nil {
		return n, true
	}
	rank, ok := namedLevelRanks[label]
	return rank, ok
}

// EvaluationFilter provides filters for listing evaluations.
type EvaluationFilter struct {
	StudentID string
	GenreID   string
	Status    EvaluationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
