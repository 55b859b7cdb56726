package models

import "time"

// Genre is a dance style offered by the studio (e.g. Ballet, Jazz, Tap).
type Genre struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassType is a catalog template for classes of a genre at a level, with
// age bounds and per-term pricing. Scheduled occurrences are ClassInstances.
type ClassType struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Code            string    `db:"code" json:"code"`
	GenreID         string    `db:"genre_id" json:"genre_id"`
	Level           string    `db:"level" json:"level"`
	Description     string    `db:"description" json:"description,omitempty"`
	MinAge          int       `db:"min_age" json:"min_age"`
	MaxAge          *int      `db:"max_age" json:"max_age,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PriceCents      int64     `db:"price_cents" json:"price_cents"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ClassTypeDetail enriches ClassType with its genre.
type ClassTypeDetail struct {
	ClassType
	GenreName string `db:"genre_name" json:"genre_name"`
	GenreCode string `db:"genre_code" json:"genre_code"`
}

// ClassTypeFilter provides filters for listing class types.
type ClassTypeFilter struct {
	GenreID   string
	Level     string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
