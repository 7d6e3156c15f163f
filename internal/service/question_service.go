package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/grading"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// QuestionStore persists the question bank.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ExistingTitles(ctx context.Context, titles []string) (map[string]bool, error)
	CreateMany(ctx context.Context, questions []model.Question) error
	List(ctx context.Context, f model.QuestionFilter) ([]model.Question, int, error)
}

// QuestionService handles question bank business logic.
type QuestionService struct {
	questions QuestionStore
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionStore, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// CreateQuestions validates and stores a batch of questions.
// Questions whose title already exists, in the bank or earlier in the batch, are skipped.
func (s *QuestionService) CreateQuestions(ctx context.Context, reqs []model.CreateQuestionRequest) (*model.BulkCreateQuestionsResult, error) {
	fields := make(map[string]string)
	for i, req := range reqs {
		if msg := checkAnswerKey(req); msg != "" {
			fields[fmt.Sprintf("questions[%d].correct_answers", i)] = msg
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	titles := make([]string, len(reqs))
	for i, req := range reqs {
		titles[i] = strings.TrimSpace(req.Title)
	}
	existing, err := s.questions.ExistingTitles(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("check existing titles: %w", err)
	}

	result := &model.BulkCreateQuestionsResult{Created: []model.Question{}, Skipped: []string{}}
	toCreate := make([]model.Question, 0, len(reqs))
	for i, req := range reqs {
		title := titles[i]
		if existing[title] {
			result.Skipped = append(result.Skipped, title)
			continue
		}
		existing[title] = true

		q := model.Question{
			Title:          title,
			Description:    req.Description,
			Complexity:     req.Complexity,
			Type:           req.Type,
			Options:        req.Options,
			CorrectAnswers: req.CorrectAnswers,
			MaxScore:       req.MaxScore,
			Tags:           req.Tags,
		}
		if q.Options == nil {
			q.Options = []any{}
		}
		if q.Tags == nil {
			q.Tags = []string{}
		}
		toCreate = append(toCreate, q)
	}

	if len(toCreate) > 0 {
		if err := s.questions.CreateMany(ctx, toCreate); err != nil {
			return nil, fmt.Errorf("create questions: %w", err)
		}
	}
	result.Created = toCreate

	s.log.Info().
		Int("created", len(result.Created)).
		Int("skipped", len(result.Skipped)).
		Msg("Questions imported")
	return result, nil
}

// List returns a filtered page of the question bank.
func (s *QuestionService) List(ctx context.Context, f model.QuestionFilter) ([]model.Question, *response.Pagination, error) {
	f.Normalize()
	questions, total, err := s.questions.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	return questions, response.NewPagination(f.Page, f.PerPage, total), nil
}

// Get returns one question, including its answer key.
func (s *QuestionService) Get(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// checkAnswerKey enforces that choice answers are drawn from the options. Returns "" when valid.
func checkAnswerKey(req model.CreateQuestionRequest) string {
	switch req.Type {
	case model.QuestionTypeSingleChoice:
		v, ok := req.CorrectAnswers.(string)
		if !ok {
			return "single choice must have a single string correct answer"
		}
		if v != "" && !containsOption(req.Options, v) {
			return "single choice answer must be one of the provided options"
		}

	case model.QuestionTypeMultiChoice:
		list, ok := req.CorrectAnswers.([]any)
		if !ok {
			return "multi choice must have a list of correct answers"
		}
		for _, v := range list {
			if !containsOption(req.Options, v) {
				return "all multi choice answers must be contained within the options list"
			}
		}
	}
	return ""
}

func containsOption(options []any, v any) bool {
	for _, o := range options {
		if grading.ScalarEqual(o, v) {
			return true
		}
	}
	return false
}
