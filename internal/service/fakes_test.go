package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// clone round-trips through JSON so fakes behave like a database: callers never share maps with storage.
func clone[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

type sessionKey struct {
	exam, student uuid.UUID
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[sessionKey]*model.ExamSession
	// beforeCreate runs inside Create before the uniqueness check, to simulate a concurrent winner.
	beforeCreate func()
	creates      int
	failWrites   error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[sessionKey]*model.ExamSession)}
}

func (f *fakeSessionStore) put(s *model.ExamSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionKey{s.ExamID, s.StudentID}] = clone(s)
}

func (f *fakeSessionStore) GetByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey{examID, studentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.ExamSession) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	key := sessionKey{s.ExamID, s.StudentID}
	if _, ok := f.sessions[key]; ok {
		return repository.ErrDuplicateSession
	}
	s.ID = uuid.New()
	s.Status = model.SessionStatusInProgress
	f.sessions[key] = clone(s)
	return nil
}

func (f *fakeSessionStore) Autosave(_ context.Context, examID, studentID uuid.UUID, answers map[string]any, remaining *int) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return uuid.Nil, f.failWrites
	}
	s, ok := f.sessions[sessionKey{examID, studentID}]
	if !ok || s.Status != model.SessionStatusInProgress {
		return uuid.Nil, repository.ErrNotFound
	}
	if answers != nil {
		s.Answers = clone(answers)
	}
	if remaining != nil {
		r := *remaining
		s.RemainingSeconds = &r
	}
	return s.ID, nil
}

func (f *fakeSessionStore) Mutate(_ context.Context, examID, studentID uuid.UUID, status model.SessionStatus, fn repository.SessionMutation) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	key := sessionKey{examID, studentID}
	stored, ok := f.sessions[key]
	if !ok || stored.Status != status {
		return nil, repository.ErrNotFound
	}
	working := clone(stored)
	if err := fn(working); err != nil {
		return nil, err
	}
	f.sessions[key] = clone(working)
	return working, nil
}

func (f *fakeSessionStore) ListSubmitted(_ context.Context, filter model.ResultFilter) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.Status != model.SessionStatusSubmitted {
			continue
		}
		if filter.ExamID != nil && s.ExamID != *filter.ExamID {
			continue
		}
		if filter.StudentID != nil && s.StudentID != *filter.StudentID {
			continue
		}
		out = append(out, *clone(s))
	}
	return out, nil
}

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newFakeExamStore(exams ...*model.Exam) *fakeExamStore {
	f := &fakeExamStore{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		f.exams[e.ID] = clone(e)
	}
	return f
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(e), nil
}

func (f *fakeExamStore) List(_ context.Context, publishedOnly bool) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Exam{}
	for _, e := range f.exams {
		if publishedOnly && !e.IsPublished {
			continue
		}
		out = append(out, *clone(e))
	}
	return out, nil
}

func (f *fakeExamStore) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return f.List(ctx, true)
}

func (f *fakeExamStore) ListAvailable(ctx context.Context, at time.Time) ([]model.Exam, error) {
	published, _ := f.List(ctx, true)
	out := []model.Exam{}
	for _, e := range published {
		if e.OpenAt(at) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	f.exams[e.ID] = clone(e)
	return nil
}

func (f *fakeExamStore) Update(_ context.Context, e *model.Exam, replaceQuestions bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.exams[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := clone(e)
	if !replaceQuestions {
		next.QuestionIDs = old.QuestionIDs
	}
	f.exams[e.ID] = next
	return nil
}

func (f *fakeExamStore) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.IsPublished = published
	return nil
}

func (f *fakeExamStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.exams, id)
	return nil
}

type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[uuid.UUID]model.Question
}

func newFakeQuestionStore(qs ...model.Question) *fakeQuestionStore {
	f := &fakeQuestionStore{questions: make(map[uuid.UUID]model.Question)}
	for _, q := range qs {
		f.questions[q.ID] = q
	}
	return f
}

func (f *fakeQuestionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func (f *fakeQuestionStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Question
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestionStore) ExistingTitles(_ context.Context, titles []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := make(map[string]bool)
	for _, q := range f.questions {
		for _, t := range titles {
			if q.Title == t {
				existing[t] = true
			}
		}
	}
	return existing, nil
}

func (f *fakeQuestionStore) CreateMany(_ context.Context, qs []model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range qs {
		qs[i].ID = uuid.New()
		f.questions[qs[i].ID] = qs[i]
	}
	return nil
}

func (f *fakeQuestionStore) List(_ context.Context, filter model.QuestionFilter) ([]model.Question, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]model.Question, 0, len(f.questions))
	for _, q := range f.questions {
		all = append(all, q)
	}
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

type fakePayloadCache struct {
	mu       sync.Mutex
	payloads map[uuid.UUID]*model.ExamPayload
	gets     int
}

func newFakePayloadCache() *fakePayloadCache {
	return &fakePayloadCache{payloads: make(map[uuid.UUID]*model.ExamPayload)}
}

func (f *fakePayloadCache) Get(_ context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	p, ok := f.payloads[examID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return clone(p), nil
}

func (f *fakePayloadCache) Set(_ context.Context, payload *model.ExamPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[payload.ExamID] = clone(payload)
	return nil
}

func (f *fakePayloadCache) Delete(_ context.Context, examID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.payloads, examID)
	return nil
}

func (f *fakePayloadCache) has(examID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.payloads[examID]
	return ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (f *fakePublisher) Publish(_ context.Context, e model.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) types() []model.SessionEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SessionEventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fakeAuditQueue struct {
	mu     sync.Mutex
	audits []model.GradeAudit
}

func (f *fakeAuditQueue) Push(_ context.Context, a model.GradeAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, a)
	return nil
}
