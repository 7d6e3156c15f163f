package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/grading"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// SessionStore persists exam sessions.
type SessionStore interface {
	GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	Autosave(ctx context.Context, examID, studentID uuid.UUID, answers map[string]any, remaining *int) (uuid.UUID, error)
	Mutate(ctx context.Context, examID, studentID uuid.UUID, status model.SessionStatus, fn repository.SessionMutation) (*model.ExamSession, error)
	ListSubmitted(ctx context.Context, filter model.ResultFilter) ([]model.ExamSession, error)
}

// ExamReader looks up exams with their ordered question ids.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionReader looks up catalog questions.
type QuestionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// PayloadProvider returns the sanitized question list of an exam.
type PayloadProvider interface {
	Payload(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error)
}

// ExamSessionService owns the session lifecycle: start, autosave, submit, results and manual grading.
type ExamSessionService struct {
	sessions  SessionStore
	exams     ExamReader
	questions QuestionReader
	payloads  PayloadProvider
	events    EventPublisher
	audits    AuditQueue
	log       zerolog.Logger
	now       func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessions SessionStore,
	exams ExamReader,
	questions QuestionReader,
	payloads PayloadProvider,
	events EventPublisher,
	audits AuditQueue,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions:  sessions,
		exams:     exams,
		questions: questions,
		payloads:  payloads,
		events:    events,
		audits:    audits,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		now:       time.Now,
	}
}

// Start creates the student's session or resumes the in-progress one.
// A concurrent start that loses the insert race returns the winner's session.
func (s *ExamSessionService) Start(ctx context.Context, examID, studentID uuid.UUID) (*model.SessionView, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.IsPublished {
		return nil, ErrExamNotAvailable
	}

	now := s.now().UTC()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return nil, ErrExamNotStarted
	}
	if exam.EndTime != nil && now.After(*exam.EndTime) {
		return nil, ErrExamEnded
	}

	existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		return s.resume(ctx, exam, existing)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	session := &model.ExamSession{
		ExamID:         examID,
		StudentID:      studentID,
		StartTime:      now,
		Status:         model.SessionStatusInProgress,
		Answers:        map[string]any{},
		QuestionScores: map[string]*float64{},
	}
	if exam.DurationMinutes > 0 {
		remaining := exam.DurationMinutes * 60
		session.RemainingSeconds = &remaining
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicateSession) {
			return nil, fmt.Errorf("create session: %w", err)
		}

		s.log.Warn().
			Str("exam_id", examID.String()).
			Str("student_id", studentID.String()).
			Msg("Concurrent start detected, returning existing session")

		winner, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("reload session after conflict: %w", err)
		}
		return s.resume(ctx, exam, winner)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", studentID.String()).
		Str("session_id", session.ID.String()).
		Msg("Session started")

	s.publish(ctx, model.EventSessionStarted, session)
	return s.view(ctx, exam, session)
}

func (s *ExamSessionService) resume(ctx context.Context, exam *model.Exam, session *model.ExamSession) (*model.SessionView, error) {
	if session.Status == model.SessionStatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	return s.view(ctx, exam, session)
}

func (s *ExamSessionService) view(ctx context.Context, exam *model.Exam, session *model.ExamSession) (*model.SessionView, error) {
	payload, err := s.payloads.Payload(ctx, exam)
	if err != nil {
		return nil, fmt.Errorf("load exam questions: %w", err)
	}

	answers := session.Answers
	if answers == nil {
		answers = map[string]any{}
	}

	return &model.SessionView{
		ID:               session.ID,
		ExamID:           session.ExamID,
		StudentID:        session.StudentID,
		StartTime:        session.StartTime,
		Status:           session.Status,
		RemainingSeconds: session.RemainingSeconds,
		Answers:          answers,
		Questions:        payload.Questions,
	}, nil
}

// Autosave replaces the stored answers and/or remaining time of an in-progress session.
// Answers are replaced wholesale, not merged. No grading happens here.
func (s *ExamSessionService) Autosave(ctx context.Context, examID, studentID uuid.UUID, req model.AutosaveRequest) error {
	if r := req.RemainingSeconds; r != nil && (*r < 0 || *r > model.MaxRemainingSeconds) {
		return newValidationError("remaining_seconds",
			fmt.Sprintf("remaining_seconds must be between 0 and %d", model.MaxRemainingSeconds))
	}

	if _, err := s.sessions.Autosave(ctx, examID, studentID, req.Answers, req.RemainingSeconds); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		s.log.Error().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", studentID.String()).
			Msg("Autosave failed")
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

// Submit merges the final answers into the stored ones, grades them and closes the session.
func (s *ExamSessionService) Submit(ctx context.Context, examID, studentID uuid.UUID, req model.SubmitRequest) (*model.SessionResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.orderedQuestions(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session, err := s.sessions.Mutate(ctx, examID, studentID, model.SessionStatusInProgress, func(sess *model.ExamSession) error {
		merged := make(map[string]any, len(sess.Answers)+len(req.Answers))
		for k, v := range sess.Answers {
			merged[k] = v
		}
		for k, v := range req.Answers {
			merged[k] = v
		}

		scores, total := grading.Grade(merged, questions)
		zero := 0

		sess.Answers = merged
		sess.QuestionScores = scores
		sess.Score = &total
		sess.Status = model.SessionStatusSubmitted
		sess.RemainingSeconds = &zero
		sess.SubmittedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		s.log.Error().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", studentID.String()).
			Msg("Submit failed")
		return nil, fmt.Errorf("submit: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", studentID.String()).
		Str("session_id", session.ID.String()).
		Float64("score", *session.Score).
		Msg("Session submitted")

	s.publish(ctx, model.EventSessionSubmitted, session)
	result := model.NewSessionResult(session)
	return &result, nil
}

// QueryResults lists submitted sessions. Non-privileged callers only ever see their own.
func (s *ExamSessionService) QueryResults(ctx context.Context, filter model.ResultFilter, caller model.Caller) ([]model.SessionResult, error) {
	if !caller.Privileged() {
		own := caller.ID
		filter.StudentID = &own
	}

	sessions, err := s.sessions.ListSubmitted(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results := make([]model.SessionResult, len(sessions))
	for i := range sessions {
		results[i] = model.NewSessionResult(&sessions[i])
	}
	return results, nil
}

// GradeOverride records a manual score and recomputes the whole score map from stored answers.
func (s *ExamSessionService) GradeOverride(ctx context.Context, req model.GradeOverrideRequest, caller model.Caller) (*model.SessionResult, error) {
	if !caller.Privileged() {
		return nil, ErrForbidden
	}
	if req.NewScore == nil {
		return nil, newValidationError("new_score", "new_score is required")
	}

	question, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	newScore := *req.NewScore
	if math.IsNaN(newScore) || newScore < 0 || newScore > float64(question.MaxScore) {
		return nil, fmt.Errorf("%w: new_score must be within [0, %d]", ErrScoreOutOfRange, question.MaxScore)
	}

	qid := req.QuestionID.String()
	var previous *float64

	session, err := s.sessions.Mutate(ctx, req.ExamID, req.StudentID, model.SessionStatusSubmitted, func(sess *model.ExamSession) error {
		if v := sess.QuestionScores[qid]; v != nil {
			p := *v
			previous = &p
		}

		catalog, err := s.catalogFor(ctx, sess, req.QuestionID)
		if err != nil {
			return err
		}

		scores, total := grading.Regrade(sess.Answers, sess.QuestionScores, qid, newScore, catalog)
		sess.QuestionScores = scores
		sess.Score = &total
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("grade override: %w", err)
	}

	s.log.Info().
		Str("exam_id", req.ExamID.String()).
		Str("student_id", req.StudentID.String()).
		Str("question_id", qid).
		Float64("new_score", newScore).
		Float64("total", *session.Score).
		Msg("Grade override applied")

	s.publish(ctx, model.EventSessionGraded, session)
	s.enqueueAudit(ctx, model.GradeAudit{
		SessionID:     session.ID,
		ExamID:        session.ExamID,
		StudentID:     session.StudentID,
		QuestionID:    req.QuestionID,
		NewScore:      newScore,
		PreviousScore: previous,
		Total:         *session.Score,
		GradedBy:      caller.ID,
		GradedAt:      s.now().UTC(),
	})

	result := model.NewSessionResult(session)
	return &result, nil
}

// catalogFor loads every question referenced by the session's answers and scores, plus extra.
// Ids that are not valid uuids cannot be in the catalog and are skipped.
func (s *ExamSessionService) catalogFor(ctx context.Context, sess *model.ExamSession, extra uuid.UUID) (map[string]model.Question, error) {
	seen := map[uuid.UUID]struct{}{extra: {}}
	ids := []uuid.UUID{extra}
	add := func(key string) {
		id, err := uuid.Parse(key)
		if err != nil {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for k := range sess.Answers {
		add(k)
	}
	for k := range sess.QuestionScores {
		add(k)
	}

	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	catalog := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		catalog[q.ID.String()] = q
	}
	return catalog, nil
}

// orderedQuestions loads the exam's questions in exam order, skipping any deleted from the catalog.
func (s *ExamSessionService) orderedQuestions(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load exam questions: %w", err)
	}
	byID := make(map[uuid.UUID]model.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// publish is best-effort; monitor delivery never fails a session operation.
func (s *ExamSessionService) publish(ctx context.Context, typ model.SessionEventType, session *model.ExamSession) {
	if s.events == nil {
		return
	}
	event := model.SessionEvent{
		Type:      typ,
		ExamID:    session.ExamID,
		SessionID: session.ID,
		StudentID: session.StudentID,
		Score:     session.Score,
		At:        s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", session.ExamID.String()).
			Str("event", string(typ)).
			Msg("Failed to publish session event")
	}
}

// enqueueAudit runs after the override has committed, so a queue failure is only logged.
func (s *ExamSessionService) enqueueAudit(ctx context.Context, audit model.GradeAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Push(ctx, audit); err != nil {
		s.log.Error().Err(err).
			Str("session_id", audit.SessionID.String()).
			Str("question_id", audit.QuestionID.String()).
			Msg("Failed to enqueue grade audit")
	}
}
