package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the lifecycle of a billing/enrollment account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// Valid reports whether the status is a supported value.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusSuspended, AccountStatusClosed:
		return true
	default:
		return false
	}
}

// CanEnroll reports whether the account may request enrollments.
func (s AccountStatus) CanEnroll() bool {
	return s != AccountStatusClosed
}

// Account binds one Student, one Guardian and one BillingContact into a
// billing and enrollment unit. The three references may resolve to the same
// Person.
type Account struct {
	ID               string        `db:"id" json:"id"`
	Code             string        `db:"code" json:"code"`
	StudentID        string        `db:"student_id" json:"student_id"`
	GuardianID       string        `db:"guardian_id" json:"guardian_id"`
	BillingContactID string        `db:"billing_contact_id" json:"billing_contact_id"`
	Status           AccountStatus `db:"status" json:"status"`
	StartDate        time.Time     `db:"start_date" json:"start_date"`
	EndDate          *time.Time    `db:"end_date" json:"end_date,omitempty"`
	Notes            string        `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// AccountDetail enriches Account with the referenced person identities.
type AccountDetail struct {
	Account
	StudentPersonID    string    `db:"student_person_id" json:"student_person_id"`
	StudentName        string    `db:"student_name" json:"student_name"`
	GuardianPersonID   string    `db:"guardian_person_id" json:"guardian_person_id"`
	GuardianName       string    `db:"guardian_name" json:"guardian_name"`
	BillingPersonID    string    `db:"billing_person_id" json:"billing_person_id"`
	BillingName        string    `db:"billing_name" json:"billing_name"`
	StudentDateOfBirth time.Time `db:"student_date_of_birth" json:"student_date_of_birth"`
}

// GenerateAccountCode produces a unique human-facing account code.
func GenerateAccountCode() string {
	return "ACC-" + strings.ToUpper(uuid.NewString()[:8])
}

// AccountFilter provides filters for listing accounts.
type AccountFilter struct {
	Status    AccountStatus
	PersonID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
