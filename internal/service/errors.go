package service

import (
	"errors"
	"sort"
	"strings"
)

// Domain errors. Handlers map these to HTTP statuses.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotAvailable   = errors.New("exam is not published")
	ErrExamNotStarted     = errors.New("exam has not started yet")
	ErrExamEnded          = errors.New("exam has ended")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAlreadySubmitted   = errors.New("exam already submitted")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrScoreOutOfRange    = errors.New("score out of range")
	ErrDuplicateQuestions = errors.New("exam question list contains duplicates")
	ErrUnknownQuestions   = errors.New("exam references unknown questions")
	ErrNoQuestions        = errors.New("exam has no questions, cannot publish")
	ErrInvalidWindow      = errors.New("end_time must be after start_time")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError carries field-level details for a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidPayload) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
