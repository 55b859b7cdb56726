package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusApplied   EnrollmentStatus = "APPLIED"
	EnrollmentStatusTrial     EnrollmentStatus = "TRIAL"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWaitlist  EnrollmentStatus = "WAITLIST"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// enrollmentTransitions is the closed transition table for the workflow.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusApplied:  {EnrollmentStatusTrial, EnrollmentStatusWaitlist, EnrollmentStatusWithdrawn},
	EnrollmentStatusTrial:    {EnrollmentStatusActive, EnrollmentStatusWithdrawn},
	EnrollmentStatusActive:   {EnrollmentStatusWithdrawn, EnrollmentStatusCompleted},
	EnrollmentStatusWaitlist: {EnrollmentStatusApplied, EnrollmentStatusWithdrawn},
}

// CanTransition reports whether the workflow permits moving to the target
// status.
func (s EnrollmentStatus) CanTransition(to EnrollmentStatus) bool {
	for _, next := range enrollmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusWithdrawn || s == EnrollmentStatusCompleted
}

// CountsTowardCapacity reports whether an enrollment in this status occupies
// a class slot.
func (s EnrollmentStatus) CountsTowardCapacity() bool {
	return s != EnrollmentStatusWithdrawn && s != EnrollmentStatusWaitlist
}

// PermitsAttendance reports whether attendance may be marked against the
// enrollment.
func (s EnrollmentStatus) PermitsAttendance() bool {
	return s == EnrollmentStatusTrial || s == EnrollmentStatusActive
}

// Enrollment is an Account's membership in a ClassInstance.
type Enrollment struct {
	ID                  string           `db:"id" json:"id"`
	AccountID           string           `db:"account_id" json:"account_id"`
	ClassInstanceID     string           `db:"class_instance_id" json:"class_instance_id"`
	Status              EnrollmentStatus `db:"status" json:"status"`
	BlockedOnEvaluation bool             `db:"blocked_on_evaluation" json:"blocked_on_evaluation"`
	RequestDate         time.Time        `db:"request_date" json:"request_date"`
	TrialDate           *time.Time       `db:"trial_date" json:"trial_date,omitempty"`
	ActiveDate          *time.Time       `db:"active_date" json:"active_date,omitempty"`
	WithdrawnDate       *time.Time       `db:"withdrawn_date" json:"withdrawn_date,omitempty"`
	CompletedDate       *time.Time       `db:"completed_date" json:"completed_date,omitempty"`
	Notes               string           `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with account, student and class info
// so upstream role scoping can be applied.
type EnrollmentDetail struct {
	Enrollment
	AccountCode      string `db:"account_code" json:"account_code"`
	StudentID        string `db:"student_id" json:"student_id"`
	StudentPersonID  string `db:"student_person_id" json:"student_person_id"`
	StudentName      string `db:"student_name" json:"student_name"`
	GuardianPersonID string `db:"guardian_person_id" json:"guardian_person_id"`
	ClassTypeName    string `db:"class_type_name" json:"class_type_name"`
	TermName         string `db:"term_name" json:"term_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	AccountID       string
	ClassInstanceID string
	TermID          string
	Status          EnrollmentStatus
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}
