package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Person is the canonical identity record shared by every role.
type Person struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	GivenName      string    `db:"given_name" json:"given_name"`
	FamilyName     string    `db:"family_name" json:"family_name"`
	PreferredName  string    `db:"preferred_name" json:"preferred_name,omitempty"`
	DateOfBirth    time.Time `db:"date_of_birth" json:"date_of_birth"`
	Email          *string   `db:"email" json:"email,omitempty"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	PhoneAlt       string    `db:"phone_alt" json:"phone_alt,omitempty"`
	AddressLine1   string    `db:"address_line1" json:"address_line1"`
	AddressLine2   string    `db:"address_line2" json:"address_line2,omitempty"`
	City           string    `db:"city" json:"city"`
	State          string    `db:"state" json:"state"`
	PostalCode     string    `db:"postal_code" json:"postal_code"`
	Country        string    `db:"country" json:"country"`
	EmergencyName  string    `db:"emergency_name" json:"emergency_name,omitempty"`
	EmergencyPhone string    `db:"emergency_phone" json:"emergency_phone,omitempty"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the given and family name joined.
func (p *Person) FullName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

// DisplayName prefers the preferred name when present.
func (p *Person) DisplayName() string {
	if p.PreferredName != "" {
		return strings.TrimSpace(p.PreferredName + " " + p.FamilyName)
	}
	return p.FullName()
}

// MailingAddress joins the address fields into a single display line.
func (p *Person) MailingAddress() string {
	parts := make([]string, 0, 6)
	for _, part := range []string{p.AddressLine1, p.AddressLine2, p.City, p.State, p.PostalCode, p.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// HasContactMethod reports whether at least one contact method is present.
func (p *Person) HasContactMethod() bool {
	return (p.Email != nil && *p.Email != "") || p.Phone != "" || p.PhoneAlt != ""
}

// AgeAt returns the person's age in whole years at the given date.
func (p *Person) AgeAt(at time.Time) int {
	age := at.Year() - p.DateOfBirth.Year()
	anniversary := time.Date(at.Year(), p.DateOfBirth.Month(), p.DateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		age--
	}
	return age
}

// GeneratePersonCode produces a unique human-facing person code.
func GeneratePersonCode() string {
	return "PER-" + strings.ToUpper(uuid.NewString()[:8])
}

// PersonFilter captures search parameters for listing people.
type PersonFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
