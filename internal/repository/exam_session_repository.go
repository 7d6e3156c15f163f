package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const sessionColumns = `id, exam_id, student_id, start_time, status, score,
	answers, question_scores, remaining_seconds, submitted_at`

// SessionMutation edits a locked session in memory. Returning an error aborts the transaction.
type SessionMutation func(s *model.ExamSession) error

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartTime, &s.Status, &s.Score,
		&s.Answers, &s.QuestionScores, &s.RemainingSeconds, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = map[string]any{}
	}
	if s.QuestionScores == nil {
		s.QuestionScores = map[string]*float64{}
	}
	return s, nil
}

// GetByExamAndStudent retrieves the session for an exam-student pair regardless of status.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Create inserts a new in-progress session.
// Returns ErrDuplicateSession when a concurrent request already created one.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	if s.Answers == nil {
		s.Answers = map[string]any{}
	}
	if s.QuestionScores == nil {
		s.QuestionScores = map[string]*float64{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, start_time, status, answers, question_scores, remaining_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		s.ExamID, s.StudentID, s.StartTime, model.SessionStatusInProgress,
		s.Answers, s.QuestionScores, s.RemainingSeconds,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSession
		}
		return err
	}
	s.Status = model.SessionStatusInProgress
	return nil
}

// Autosave overwrites answers and/or remaining time on an in-progress session in one statement.
// A nil answers map or nil remaining leaves that column unchanged. Returns the session id.
func (r *ExamSessionRepository) Autosave(ctx context.Context, examID, studentID uuid.UUID, answers map[string]any, remaining *int) (uuid.UUID, error) {
	var answersArg any
	if answers != nil {
		answersArg = answers
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET answers = COALESCE($3::jsonb, answers),
		     remaining_seconds = COALESCE($4::int, remaining_seconds)
		 WHERE exam_id = $1 AND student_id = $2 AND status = $5
		 RETURNING id`,
		examID, studentID, answersArg, remaining, model.SessionStatusInProgress,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return id, nil
}

// Mutate locks the session for (examID, studentID) in the given status, applies fn and writes it back.
// Returns ErrNotFound when no session matches the status filter.
func (r *ExamSessionRepository) Mutate(ctx context.Context, examID, studentID uuid.UUID, status model.SessionStatus, fn SessionMutation) (*model.ExamSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3
		 FOR UPDATE`, examID, studentID, status,
	))
	if err != nil {
		return nil, notFound(err)
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, score = $3, answers = $4, question_scores = $5,
		     remaining_seconds = $6, submitted_at = $7
		 WHERE id = $1`,
		s.ID, s.Status, s.Score, s.Answers, s.QuestionScores, s.RemainingSeconds, s.SubmittedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

// ListSubmitted returns submitted sessions matching the filter, newest first.
func (r *ExamSessionRepository) ListSubmitted(ctx context.Context, filter model.ResultFilter) ([]model.ExamSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM exam_sessions WHERE status = $1`
	args := []any{model.SessionStatusSubmitted}

	if filter.ExamID != nil {
		args = append(args, *filter.ExamID)
		query += fmt.Sprintf(" AND exam_id = $%d", len(args))
	}
	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	query += " ORDER BY submitted_at DESC NULLS LAST, start_time DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
