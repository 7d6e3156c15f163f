package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeMultiChoice  QuestionType = "multi_choice"
	QuestionTypeText         QuestionType = "text"
	QuestionTypeImageUpload  QuestionType = "image_upload"
)

// AutoGraded reports whether answers of this type are scored without human review.
func (t QuestionType) AutoGraded() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question is an immutable catalog entry.
// Options and CorrectAnswers hold decoded JSON values (string, float64, bool, []any).
type Question struct {
	ID             uuid.UUID    `json:"id"`
	Title          string       `json:"title"`
	Description    *string      `json:"description"`
	Complexity     string       `json:"complexity"`
	Type           QuestionType `json:"type"`
	Options        []any        `json:"options"`
	CorrectAnswers any          `json:"correct_answers"`
	MaxScore       int          `json:"max_score"`
	Tags           []string     `json:"tags"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SanitizedQuestion is a question as shown to students: no correct answers.
type SanitizedQuestion struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Complexity  string       `json:"complexity"`
	Type        QuestionType `json:"type"`
	Options     []any        `json:"options"`
	MaxScore    int          `json:"max_score"`
	Tags        []string     `json:"tags"`
}

// CreateQuestionRequest is one question in a bulk authoring payload.
type CreateQuestionRequest struct {
	Title          string       `json:"title" binding:"required,min=1,max=1000"`
	Description    *string      `json:"description"`
	Complexity     string       `json:"complexity" binding:"required,max=100"`
	Type           QuestionType `json:"type" binding:"required,oneof=single_choice multi_choice text image_upload"`
	Options        []any        `json:"options"`
	CorrectAnswers any          `json:"correct_answers"`
	MaxScore       int          `json:"max_score" binding:"required,min=1"`
	Tags           []string     `json:"tags"`
}

// BulkCreateQuestionsRequest wraps a list of questions to import.
type BulkCreateQuestionsRequest struct {
	Questions []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// BulkCreateQuestionsResult reports which questions were created and which titles were skipped.
type BulkCreateQuestionsResult struct {
	Created []Question `json:"created"`
	Skipped []string   `json:"skipped"`
}

// QuestionFilter narrows question bank listings.
type QuestionFilter struct {
	Search     string `form:"search"`
	Tag        string `form:"tags"`
	Complexity string `form:"complexity"`
	Page       int    `form:"page"`
	PerPage    int    `form:"per_page"`
}

// Normalize clamps paging to page >= 1 and 1 <= per_page <= 100.
func (f *QuestionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

// Offset returns the row offset for the current page.
func (f QuestionFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
