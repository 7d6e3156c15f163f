package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is an ordered set of question references with an availability window.
type Exam struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	StartTime       *time.Time  `json:"start_time"`
	EndTime         *time.Time  `json:"end_time"`
	DurationMinutes int         `json:"duration"`
	IsPublished     bool        `json:"is_published"`
	QuestionIDs     []uuid.UUID `json:"questions"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OpenAt reports whether t falls within the availability window. Nil bounds are unbounded.
func (e *Exam) OpenAt(t time.Time) bool {
	if e.StartTime != nil && t.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && t.After(*e.EndTime) {
		return false
	}
	return true
}

// CreateExamRequest is the payload for creating a new exam.
// The order of Questions defines the exam sequence.
type CreateExamRequest struct {
	Title           string      `json:"title" binding:"required,min=1,max=255"`
	StartTime       *time.Time  `json:"start_time"`
	EndTime         *time.Time  `json:"end_time"`
	DurationMinutes int         `json:"duration" binding:"required,min=1"`
	IsPublished     bool        `json:"is_published"`
	Questions       []uuid.UUID `json:"questions"`
}

// UpdateExamRequest is a partial update. A non-nil Questions replaces the whole sequence.
type UpdateExamRequest struct {
	Title           *string      `json:"title" binding:"omitempty,min=1,max=255"`
	StartTime       *time.Time   `json:"start_time"`
	EndTime         *time.Time   `json:"end_time"`
	DurationMinutes *int         `json:"duration" binding:"omitempty,min=1"`
	IsPublished     *bool        `json:"is_published"`
	Questions       *[]uuid.UUID `json:"questions"`
}

// ExamPayload is the Redis-cached question list sent to students.
type ExamPayload struct {
	ExamID    uuid.UUID           `json:"exam_id"`
	Title     string              `json:"title"`
	Duration  int                 `json:"duration"`
	Questions []SanitizedQuestion `json:"questions"`
}
