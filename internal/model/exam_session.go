package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. Submitted is terminal.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusSubmitted  SessionStatus = "submitted"
)

// ExamSession is one student's single attempt at one exam.
// A nil entry in QuestionScores means "not yet graded".
type ExamSession struct {
	ID               uuid.UUID           `json:"id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	StudentID        uuid.UUID           `json:"student_id"`
	StartTime        time.Time           `json:"start_time"`
	Status           SessionStatus       `json:"status"`
	Score            *float64            `json:"score"`
	Answers          map[string]any      `json:"answers"`
	QuestionScores   map[string]*float64 `json:"question_scores"`
	RemainingSeconds *int                `json:"remaining_seconds"`
	SubmittedAt      *time.Time          `json:"submitted_at,omitempty"`
}

// SessionView is returned by start: the session plus its sanitized questions in exam order.
type SessionView struct {
	ID               uuid.UUID           `json:"id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	StudentID        uuid.UUID           `json:"student_id"`
	StartTime        time.Time           `json:"start_time"`
	Status           SessionStatus       `json:"status"`
	RemainingSeconds *int                `json:"remaining_seconds"`
	Answers          map[string]any      `json:"answers"`
	Questions        []SanitizedQuestion `json:"questions"`
}

// SessionResult is the graded view of a session.
type SessionResult struct {
	ID               uuid.UUID           `json:"id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	StudentID        uuid.UUID           `json:"student_id"`
	StartTime        time.Time           `json:"start_time"`
	Status           SessionStatus       `json:"status"`
	Score            *float64            `json:"score"`
	QuestionScores   map[string]*float64 `json:"question_scores"`
	Answers          map[string]any      `json:"answers"`
	RemainingSeconds *int                `json:"remaining_seconds"`
	SubmittedAt      *time.Time          `json:"submitted_at,omitempty"`
	FullyGraded      bool                `json:"fully_graded"`
}

// NewSessionResult builds a result view from a stored session.
func NewSessionResult(s *ExamSession) SessionResult {
	full := true
	for _, v := range s.QuestionScores {
		if v == nil {
			full = false
			break
		}
	}
	return SessionResult{
		ID:               s.ID,
		ExamID:           s.ExamID,
		StudentID:        s.StudentID,
		StartTime:        s.StartTime,
		Status:           s.Status,
		Score:            s.Score,
		QuestionScores:   s.QuestionScores,
		Answers:          s.Answers,
		RemainingSeconds: s.RemainingSeconds,
		SubmittedAt:      s.SubmittedAt,
		FullyGraded:      full && s.Status == SessionStatusSubmitted,
	}
}

// MaxRemainingSeconds is the largest timer value the remaining_seconds column (int4) can hold.
const MaxRemainingSeconds = 1<<31 - 1

// AutosaveRequest overwrites answers and/or the remaining time when present.
type AutosaveRequest struct {
	Answers          map[string]any `json:"answers"`
	RemainingSeconds *int           `json:"remaining_seconds" binding:"omitempty,min=0,max=2147483647"`
}

// SubmitRequest merges answers into the stored set before grading.
type SubmitRequest struct {
	Answers map[string]any `json:"answers"`
}

// ResultFilter narrows result queries. Nil fields match everything.
type ResultFilter struct {
	ExamID    *uuid.UUID `json:"exam_id"`
	StudentID *uuid.UUID `json:"student_id"`
}

// GradeOverrideRequest sets a manual score on one question of a submitted session.
type GradeOverrideRequest struct {
	ExamID     uuid.UUID `json:"exam_id" binding:"required"`
	StudentID  uuid.UUID `json:"student_id" binding:"required"`
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	NewScore   *float64  `json:"new_score" binding:"required"`
}

// GradeAudit records one manual grade override.
type GradeAudit struct {
	SessionID     uuid.UUID `json:"session_id"`
	ExamID        uuid.UUID `json:"exam_id"`
	StudentID     uuid.UUID `json:"student_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	NewScore      float64   `json:"new_score"`
	PreviousScore *float64  `json:"previous_score"`
	Total         float64   `json:"total"`
	GradedBy      uuid.UUID `json:"graded_by"`
	GradedAt      time.Time `json:"graded_at"`
}
