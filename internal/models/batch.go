package models

import "time"

// BatchStatus captures the schedule state of a batch.
type BatchStatus string

const (
	BatchStatusUpcoming  BatchStatus = "upcoming"
	BatchStatusOngoing   BatchStatus = "ongoing"
	BatchStatusCompleted BatchStatus = "completed"
)

// Active reports whether the batch still counts as running or about to run.
func (s BatchStatus) Active() bool {
	return s == BatchStatusUpcoming || s == BatchStatusOngoing
}

// Batch is a scheduled offering of a course with a fixed seat capacity.
// CurrentStudents is written only by the capacity manager.
type Batch struct {
	ID              string      `db:"id" json:"id"`
	CourseID        string      `db:"course_id" json:"course_id"`
	InstructorID    *string     `db:"instructor_id" json:"instructor_id,omitempty"`
	Name            string      `db:"name" json:"name"`
	StartDate       time.Time   `db:"start_date" json:"start_date"`
	EndDate         time.Time   `db:"end_date" json:"end_date"`
	StartTime       string      `db:"start_time" json:"start_time"`
	EndTime         string      `db:"end_time" json:"end_time"`
	MaxStudents     int         `db:"max_students" json:"max_students"`
	CurrentStudents int         `db:"current_students" json:"current_students"`
	Status          BatchStatus `db:"status" json:"status"`
}

// SeatsRemaining returns the number of seats not yet counted against capacity.
func (b Batch) SeatsRemaining() int {
	if remaining := b.MaxStudents - b.CurrentStudents; remaining > 0 {
		return remaining
	}
	return 0
}

// BatchDetail enriches a batch with course display fields.
type BatchDetail struct {
	Batch
	CourseName     string  `db:"course_name" json:"course_name"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	CourseID string
	Status   BatchStatus
}
