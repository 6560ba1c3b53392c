package repository

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

// MemorySeed is the catalog fixture format accepted by LoadSeed.
type MemorySeed struct {
	Courses  []models.Course  `json:"courses"`
	Batches  []models.Batch   `json:"batches"`
	Students []models.Student `json:"students"`
}

// LoadSeed preloads catalog data. Batches must reference a seeded course and
// start with no seats taken, since no enrollment holds them yet.
func (l *MemoryLedger) LoadSeed(r io.Reader) error {
	var seed MemorySeed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode memory seed: %w", err)
	}
	courses := make(map[string]struct{}, len(seed.Courses))
	for _, course := range seed.Courses {
		courses[course.ID] = struct{}{}
	}
	for _, batch := range seed.Batches {
		if _, ok := courses[batch.CourseID]; !ok {
			return fmt.Errorf("batch %s references unknown course %s", batch.ID, batch.CourseID)
		}
		if batch.MaxStudents <= 0 || batch.CurrentStudents != 0 {
			return fmt.Errorf("batch %s needs max_students > 0 and current_students = 0", batch.ID)
		}
	}

	for _, course := range seed.Courses {
		l.SeedCourse(course)
	}
	for _, batch := range seed.Batches {
		l.SeedBatch(batch)
	}
	for _, student := range seed.Students {
		l.SeedStudent(student)
	}
	return nil
}
