package models

import "time"

// CourseStatus captures catalog publication state.
type CourseStatus string

const (
	CourseStatusActive   CourseStatus = "active"
	CourseStatusInactive CourseStatus = "inactive"
	CourseStatusDraft    CourseStatus = "draft"
)

// Course is a catalog entry owned by catalog administrators. Read-only here.
type Course struct {
	ID          string       `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	Description string       `db:"description" json:"description"`
	Duration    string       `db:"duration" json:"duration"`
	Price       float64      `db:"price" json:"price"`
	Status      CourseStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Status CourseStatus
}
