//go:build e2e

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-assessment/internal/grading"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// Run with: DATABASE_URL=postgres://... go test -tags e2e ./internal/repository/
// The database is migrated up and every table is truncated between tests.

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		fmt.Println("DATABASE_URL not set, skipping repository e2e tests")
		os.Exit(0)
	}

	mig, err := migrate.New("file://../../migrations", dbURL)
	if err != nil {
		fmt.Printf("Migration init failed: %v\n", err)
		os.Exit(1)
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	_, _ = mig.Close()

	testPool, err = pgxpool.New(context.Background(), dbURL)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	os.Exit(code)
}

func resetDB(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE grade_audits, exam_sessions, exam_questions, exams, questions`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seedQuestions(t *testing.T) map[string]model.Question {
	t.Helper()
	qs := []model.Question{
		{Title: "2+2", Complexity: "easy", Type: model.QuestionTypeSingleChoice,
			Options: []any{"1", "2", "4"}, CorrectAnswers: "4", MaxScore: 2, Tags: []string{"Math"}},
		{Title: "Capital of France", Complexity: "easy", Type: model.QuestionTypeSingleChoice,
			Options: []any{"Paris", "Rome"}, CorrectAnswers: "Paris", MaxScore: 1, Tags: []string{"geo"}},
		{Title: "Primes", Complexity: "medium", Type: model.QuestionTypeMultiChoice,
			Options: []any{"A", "B", "C"}, CorrectAnswers: []any{"A", "C"}, MaxScore: 3, Tags: []string{}},
		{Title: "Essay", Complexity: "hard", Type: model.QuestionTypeText, MaxScore: 5},
	}
	if err := NewQuestionRepository(testPool).CreateMany(context.Background(), qs); err != nil {
		t.Fatalf("create questions: %v", err)
	}
	byTitle := make(map[string]model.Question, len(qs))
	for _, q := range qs {
		if q.ID == uuid.Nil {
			t.Fatalf("expected id for %q", q.Title)
		}
		byTitle[q.Title] = q
	}
	return byTitle
}

func seedExam(t *testing.T, questionIDs ...uuid.UUID) *model.Exam {
	t.Helper()
	e := &model.Exam{Title: "Midterm", DurationMinutes: 60, IsPublished: true, QuestionIDs: questionIDs}
	if err := NewExamRepository(testPool).Create(context.Background(), e); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return e
}

func TestQuestionAnswerKeysRoundTrip(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewQuestionRepository(testPool)
	seeded := seedQuestions(t)

	ids := make([]uuid.UUID, 0, len(seeded))
	for _, q := range seeded {
		ids = append(ids, q.ID)
	}
	stored, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]model.Question, len(stored))
	for _, q := range stored {
		got[q.Title] = q
	}

	tests := []struct {
		title string
		want  any
	}{
		{"2+2", "4"},
		{"Capital of France", "Paris"},
		{"Primes", []any{"A", "C"}},
		{"Essay", nil},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(got[tt.title].CorrectAnswers, tt.want) {
			t.Errorf("%s: expected key %#v, got %#v", tt.title, tt.want, got[tt.title].CorrectAnswers)
		}
	}

	if s := grading.ScoreQuestion(got["2+2"], "4"); s == nil || *s != 2 {
		t.Errorf("expected stored key to grade \"4\" as 2, got %v", s)
	}
	if !reflect.DeepEqual(got["2+2"].Options, []any{"1", "2", "4"}) {
		t.Errorf("unexpected options %#v", got["2+2"].Options)
	}

	existing, err := repo.ExistingTitles(ctx, []string{"2+2", "Unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if !existing["2+2"] || existing["Unknown"] {
		t.Errorf("unexpected existing titles %v", existing)
	}

	f := model.QuestionFilter{Tag: "math", Page: 1, PerPage: 10}
	page, total, err := repo.List(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(page) != 1 || page[0].Title != "2+2" {
		t.Errorf("expected case-insensitive tag match, got total=%d %+v", total, page)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExamQuestionOrder(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewExamRepository(testPool)
	q := seedQuestions(t)

	order := []uuid.UUID{q["Essay"].ID, q["2+2"].ID, q["Primes"].ID}
	exam := seedExam(t, order...)

	got, err := repo.GetByID(ctx, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.QuestionIDs, order) {
		t.Fatalf("expected order %v, got %v", order, got.QuestionIDs)
	}

	reordered := []uuid.UUID{q["Primes"].ID, q["Essay"].ID}
	got.QuestionIDs = reordered
	if err := repo.Update(ctx, got, true); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetByID(ctx, exam.ID)
	if !reflect.DeepEqual(got.QuestionIDs, reordered) {
		t.Errorf("expected replaced order %v, got %v", reordered, got.QuestionIDs)
	}

	empty := &model.Exam{Title: "Empty", DurationMinutes: 10}
	if err := repo.Create(ctx, empty); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetByID(ctx, empty.ID)
	if len(got.QuestionIDs) != 0 {
		t.Errorf("expected no questions, got %v", got.QuestionIDs)
	}

	now := time.Now()
	open, err := repo.ListAvailable(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != exam.ID {
		t.Errorf("expected only the published exam available, got %+v", open)
	}
}

func TestSessionLifecycle(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewExamSessionRepository(testPool)
	q := seedQuestions(t)
	exam := seedExam(t, q["2+2"].ID, q["Essay"].ID)
	student := uuid.New()

	remaining := 3600
	s := &model.ExamSession{ExamID: exam.ID, StudentID: student, StartTime: time.Now().UTC(), RemainingSeconds: &remaining}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	dup := &model.ExamSession{ExamID: exam.ID, StudentID: student, StartTime: time.Now().UTC()}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}

	answers := map[string]any{q["2+2"].ID.String(): "4", q["Essay"].ID.String(): "Because."}
	left := 1200
	if _, err := repo.Autosave(ctx, exam.ID, student, answers, &left); err != nil {
		t.Fatal(err)
	}
	// nil answers keep the stored ones
	if _, err := repo.Autosave(ctx, exam.ID, student, nil, nil); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetByExamAndStudent(ctx, exam.ID, student)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored.Answers, answers) || *stored.RemainingSeconds != 1200 {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	submitted, err := repo.Mutate(ctx, exam.ID, student, model.SessionStatusInProgress, func(s *model.ExamSession) error {
		two := 2.0
		now := time.Now().UTC()
		zero := 0
		s.Status = model.SessionStatusSubmitted
		s.QuestionScores = map[string]*float64{q["2+2"].ID.String(): &two, q["Essay"].ID.String(): nil}
		s.Score = &two
		s.RemainingSeconds = &zero
		s.SubmittedAt = &now
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if submitted.Status != model.SessionStatusSubmitted {
		t.Fatalf("expected submitted, got %s", submitted.Status)
	}

	if _, err := repo.Autosave(ctx, exam.ID, student, map[string]any{}, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected autosave after submit to match nothing, got %v", err)
	}
	_, err = repo.Mutate(ctx, exam.ID, student, model.SessionStatusInProgress, func(*model.ExamSession) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected in-progress mutate after submit to fail, got %v", err)
	}

	results, err := repo.ListSubmitted(ctx, model.ResultFilter{ExamID: &exam.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	scores := results[0].QuestionScores
	if s := scores[q["2+2"].ID.String()]; s == nil || *s != 2 {
		t.Errorf("expected graded score 2, got %v", s)
	}
	if s, ok := scores[q["Essay"].ID.String()]; !ok || s != nil {
		t.Errorf("expected ungraded entry kept as null, got %v (present=%v)", s, ok)
	}

	counts, err := NewMonitorRepository(testPool).CountByStatus(ctx, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.SessionStatusSubmitted] != 1 || counts[model.SessionStatusInProgress] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}

	if err := NewExamRepository(testPool).Delete(ctx, exam.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByExamAndStudent(ctx, exam.ID, student); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected session removed with its exam, got %v", err)
	}
}

// Concurrent creates for one pair must leave exactly one row.
func TestSessionCreateRace(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewExamSessionRepository(testPool)
	exam := seedExam(t)
	student := uuid.New()

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, &model.ExamSession{ExamID: exam.ID, StudentID: student, StartTime: time.Now().UTC()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrDuplicateSession):
				dups++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || dups != n-1 {
		t.Errorf("expected 1 winner and %d duplicates, got %d and %d", n-1, wins, dups)
	}
}

func TestGradeAuditInsert(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewGradeAuditRepository(testPool)

	prev := 1.0
	audit := func() model.GradeAudit {
		return model.GradeAudit{
			SessionID: uuid.New(), ExamID: uuid.New(), StudentID: uuid.New(), QuestionID: uuid.New(),
			NewScore: 4, PreviousScore: &prev, Total: 6, GradedBy: uuid.New(), GradedAt: time.Now().UTC(),
		}
	}

	if err := repo.InsertBatch(ctx, []model.GradeAudit{audit(), audit()}); err != nil {
		t.Fatal(err)
	}
	single := audit()
	single.PreviousScore = nil
	if err := repo.Insert(ctx, single); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := testPool.QueryRow(ctx, `SELECT COUNT(*) FROM grade_audits`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 audits, got %d", n)
	}
}
