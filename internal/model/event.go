package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType enumerates monitor events published for an exam.
type SessionEventType string

const (
	EventSessionStarted   SessionEventType = "started"
	EventSessionSubmitted SessionEventType = "submitted"
	EventSessionGraded    SessionEventType = "graded"
)

// SessionEvent is published on the exam's monitor channel.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	ExamID    uuid.UUID        `json:"exam_id"`
	SessionID uuid.UUID        `json:"session_id"`
	StudentID uuid.UUID        `json:"student_id"`
	Score     *float64         `json:"score,omitempty"`
	At        time.Time        `json:"at"`
}

// MonitorSnapshot is the initial state sent when an admin opens the live monitor.
type MonitorSnapshot struct {
	ExamID     uuid.UUID `json:"exam_id"`
	InProgress int       `json:"in_progress"`
	Submitted  int       `json:"submitted"`
}
