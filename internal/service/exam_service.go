package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// ExamStore persists exams and their ordered question links.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	List(ctx context.Context, publishedOnly bool) ([]model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	ListAvailable(ctx context.Context, at time.Time) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam, replaceQuestions bool) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExamService handles exam authoring and the sanitized payload cache.
type ExamService struct {
	exams     ExamStore
	questions QuestionReader
	cache     PayloadCache
	log       zerolog.Logger
	now       func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, questions QuestionReader, cache PayloadCache, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		cache:     cache,
		log:       log.With().Str("component", "exam_service").Logger(),
		now:       time.Now,
	}
}

// Get returns an exam. Students only see published exams.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID, caller model.Caller) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Privileged() && !exam.IsPublished {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

// List returns all exams for admins, published exams for students.
func (s *ExamService) List(ctx context.Context, caller model.Caller) ([]model.Exam, error) {
	return s.exams.List(ctx, !caller.Privileged())
}

// ListAvailable returns published exams whose window is open right now.
func (s *ExamService) ListAvailable(ctx context.Context) ([]model.Exam, error) {
	return s.exams.ListAvailable(ctx, s.now().UTC())
}

// Create validates and stores a new exam. The order of req.Questions defines the exam order.
func (s *ExamService) Create(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		StartTime:       utc(req.StartTime),
		EndTime:         utc(req.EndTime),
		DurationMinutes: req.DurationMinutes,
		IsPublished:     req.IsPublished,
		QuestionIDs:     req.Questions,
	}
	if exam.QuestionIDs == nil {
		exam.QuestionIDs = []uuid.UUID{}
	}

	if err := s.validate(ctx, exam); err != nil {
		return nil, err
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Int("questions", len(exam.QuestionIDs)).Msg("Exam created")
	s.syncCache(ctx, exam)
	return exam, nil
}

// Update applies a partial update. A non-nil question list replaces the sequence atomically.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.StartTime != nil {
		exam.StartTime = utc(req.StartTime)
	}
	if req.EndTime != nil {
		exam.EndTime = utc(req.EndTime)
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.IsPublished != nil {
		exam.IsPublished = *req.IsPublished
	}
	replace := req.Questions != nil
	if replace {
		exam.QuestionIDs = *req.Questions
		if exam.QuestionIDs == nil {
			exam.QuestionIDs = []uuid.UUID{}
		}
	}

	if err := s.validate(ctx, exam); err != nil {
		return nil, err
	}
	if err := s.exams.Update(ctx, exam, replace); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Bool("questions_replaced", replace).Msg("Exam updated")
	s.syncCache(ctx, exam)
	return exam, nil
}

// Delete removes an exam with its sessions and question links.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.exams.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExamNotFound
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	s.evict(ctx, id)
	s.log.Info().Str("exam_id", id.String()).Msg("Exam deleted")
	return nil
}

// Publish marks an exam as published and warms its payload cache.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(exam.QuestionIDs) == 0 {
		return nil, ErrNoQuestions
	}
	if err := s.exams.SetPublished(ctx, id, true); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.IsPublished = true
	s.syncCache(ctx, exam)
	return exam, nil
}

// Unpublish hides an exam from students and evicts its payload cache.
func (s *ExamService) Unpublish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.exams.SetPublished(ctx, id, false); err != nil {
		return nil, fmt.Errorf("unpublish exam: %w", err)
	}
	exam.IsPublished = false
	s.evict(ctx, id)
	return exam, nil
}

// Payload returns the sanitized question list in exam order.
// A cache miss rebuilds it from PostgreSQL and, for published exams, heals the cache.
func (s *ExamService) Payload(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error) {
	payload, err := s.cache.Get(ctx, exam.ID)
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Payload cache read failed, falling back to database")
	}

	payload, err = s.buildPayload(ctx, exam)
	if err != nil {
		return nil, err
	}
	if exam.IsPublished {
		if err := s.cache.Set(ctx, payload); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to heal payload cache")
		}
	}
	return payload, nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.warm(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

func (s *ExamService) getExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return nil, mapExamErr(err)
	}
	return exam, nil
}

func mapExamErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrExamNotFound
	}
	return fmt.Errorf("get exam: %w", err)
}

// validate checks everything that must hold before any write.
func (s *ExamService) validate(ctx context.Context, exam *model.Exam) error {
	if exam.DurationMinutes <= 0 {
		return newValidationError("duration", "duration must be a positive integer (minutes)")
	}
	if exam.StartTime != nil && exam.EndTime != nil && !exam.EndTime.After(*exam.StartTime) {
		return ErrInvalidWindow
	}
	if exam.IsPublished && len(exam.QuestionIDs) == 0 {
		return ErrNoQuestions
	}

	seen := make(map[uuid.UUID]struct{}, len(exam.QuestionIDs))
	for _, id := range exam.QuestionIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateQuestions, id)
		}
		seen[id] = struct{}{}
	}

	if len(exam.QuestionIDs) == 0 {
		return nil
	}
	found, err := s.questions.GetByIDs(ctx, exam.QuestionIDs)
	if err != nil {
		return fmt.Errorf("check questions: %w", err)
	}
	if len(found) != len(exam.QuestionIDs) {
		return fmt.Errorf("%w: %d of %d found", ErrUnknownQuestions, len(found), len(exam.QuestionIDs))
	}
	return nil
}

func (s *ExamService) buildPayload(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error) {
	found, err := s.questions.GetByIDs(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byID := make(map[uuid.UUID]model.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}

	ordered := make([]model.Question, 0, len(exam.QuestionIDs))
	for _, id := range exam.QuestionIDs {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}

	sanitized := make([]model.SanitizedQuestion, 0, len(ordered))
	if err := copier.Copy(&sanitized, &ordered); err != nil {
		return nil, fmt.Errorf("sanitize questions: %w", err)
	}

	return &model.ExamPayload{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: sanitized,
	}, nil
}

func (s *ExamService) warm(ctx context.Context, exam *model.Exam) error {
	payload, err := s.buildPayload(ctx, exam)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, payload); err != nil {
		return fmt.Errorf("cache payload: %w", err)
	}
	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(payload.Questions)).
		Msg("Cache warmed")
	return nil
}

// syncCache keeps the cache in line with the exam's published flag. Failures are logged;
// Payload heals the cache on the next read.
func (s *ExamService) syncCache(ctx context.Context, exam *model.Exam) {
	if !exam.IsPublished {
		s.evict(ctx, exam.ID)
		return
	}
	if err := s.warm(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to warm exam cache")
	}
}

func (s *ExamService) evict(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to evict exam cache")
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
