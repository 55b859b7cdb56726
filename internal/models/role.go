package models

import "time"

// RoleKind identifies the role record types a person may hold.
type RoleKind string

const (
	RoleKindStudent        RoleKind = "STUDENT"
	RoleKindGuardian       RoleKind = "GUARDIAN"
	RoleKindBillingContact RoleKind = "BILLING_CONTACT"
	RoleKindStaff          RoleKind = "STAFF"
)

// Valid reports whether the kind is one of the supported role kinds.
func (k RoleKind) Valid() bool {
	switch k {
	case RoleKindStudent, RoleKindGuardian, RoleKindBillingContact, RoleKindStaff:
		return true
	default:
		return false
	}
}

// StudentStatus tracks a student's relationship with the studio.
type StudentStatus string

const (
	StudentStatusProspect StudentStatus = "PROSPECT"
	StudentStatusTrial    StudentStatus = "TRIAL"
	StudentStatusActive   StudentStatus = "ACTIVE"
	StudentStatusWaitlist StudentStatus = "WAITLIST"
	StudentStatusLeft     StudentStatus = "LEFT"
)

// Student is the student role record layered onto a Person.
type Student struct {
	ID           string        `db:"id" json:"id"`
	PersonID     string        `db:"person_id" json:"person_id"`
	MedicalNotes string        `db:"medical_notes" json:"medical_notes,omitempty"`
	Allergies    string        `db:"allergies" json:"allergies,omitempty"`
	PhotoConsent bool          `db:"photo_consent" json:"photo_consent"`
	School       string        `db:"school" json:"school,omitempty"`
	YearLevel    string        `db:"year_level" json:"year_level,omitempty"`
	Status       StudentStatus `db:"status" json:"status"`
	StartDate    *time.Time    `db:"start_date" json:"start_date,omitempty"`
	Notes        string        `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Guardian is the guardian role record layered onto a Person.
type Guardian struct {
	ID                  string    `db:"id" json:"id"`
	PersonID            string    `db:"person_id" json:"person_id"`
	AuthorizedForPickup bool      `db:"authorized_for_pickup" json:"authorized_for_pickup"`
	CommPreference      string    `db:"comm_preference" json:"comm_preference"`
	RelationshipNotes   string    `db:"relationship_notes" json:"relationship_notes,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// BillingContact is the billing role record layered onto a Person.
type BillingContact struct {
	ID                string    `db:"id" json:"id"`
	PersonID          string    `db:"person_id" json:"person_id"`
	PaymentMethod     string    `db:"payment_method" json:"payment_method"`
	BillingPreference string    `db:"billing_preference" json:"billing_preference"`
	PaymentNotes      string    `db:"payment_notes" json:"payment_notes,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// StaffRole enumerates the back-office staff roles.
type StaffRole string

const (
	StaffRoleAdmin     StaffRole = "ADMIN"
	StaffRoleTeacher   StaffRole = "TEACHER"
	StaffRoleFrontDesk StaffRole = "FRONT_DESK"
)

// EmploymentStatus tracks a staff member's employment state.
type EmploymentStatus string

const (
	EmploymentActive     EmploymentStatus = "ACTIVE"
	EmploymentOnLeave    EmploymentStatus = "ON_LEAVE"
	EmploymentTerminated EmploymentStatus = "TERMINATED"
)

// Staff is the staff role record layered onto a Person.
type Staff struct {
	ID               string           `db:"id" json:"id"`
	PersonID         string           `db:"person_id" json:"person_id"`
	HireDate         time.Time        `db:"hire_date" json:"hire_date"`
	TerminationDate  *time.Time       `db:"termination_date" json:"termination_date,omitempty"`
	Role             StaffRole        `db:"role" json:"role"`
	Bio              string           `db:"bio" json:"bio,omitempty"`
	Specialties      string           `db:"specialties" json:"specialties,omitempty"`
	EmploymentStatus EmploymentStatus `db:"employment_status" json:"employment_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}
