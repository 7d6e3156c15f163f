package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// examSelect returns exams with their ordered question ids aggregated as text.
const examSelect = `
	SELECT e.id, e.title, e.start_time, e.end_time, e.duration_minutes, e.is_published,
	       e.created_at, e.updated_at,
	       COALESCE(array_agg(eq.question_id::text ORDER BY eq.position)
	                FILTER (WHERE eq.question_id IS NOT NULL), '{}')
	FROM exams e
	LEFT JOIN exam_questions eq ON eq.exam_id = e.id`

// ExamRepository handles exam data access, including the ordered exam_questions junction.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	var ids []string
	if err := row.Scan(&e.ID, &e.Title, &e.StartTime, &e.EndTime, &e.DurationMinutes, &e.IsPublished,
		&e.CreatedAt, &e.UpdatedAt, &ids); err != nil {
		return nil, err
	}
	e.QuestionIDs = make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse question id %q: %w", s, err)
		}
		e.QuestionIDs = append(e.QuestionIDs, id)
	}
	return e, nil
}

func (r *ExamRepository) queryExams(ctx context.Context, where string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, examSelect+where+` GROUP BY e.id ORDER BY e.created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// GetByID retrieves an exam with its ordered question ids.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.pool.QueryRow(ctx, examSelect+` WHERE e.id = $1 GROUP BY e.id`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// List returns all exams, or only published ones.
func (r *ExamRepository) List(ctx context.Context, publishedOnly bool) ([]model.Exam, error) {
	if publishedOnly {
		return r.queryExams(ctx, ` WHERE e.is_published = TRUE`)
	}
	return r.queryExams(ctx, "")
}

// ListPublished returns all published exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return r.List(ctx, true)
}

// ListAvailable returns published exams whose window contains at.
func (r *ExamRepository) ListAvailable(ctx context.Context, at time.Time) ([]model.Exam, error) {
	return r.queryExams(ctx,
		` WHERE e.is_published = TRUE
		   AND (e.start_time IS NULL OR e.start_time <= $1)
		   AND (e.end_time IS NULL OR e.end_time >= $1)`, at)
}

// Create inserts an exam and its ordered question links in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, start_time, end_time, duration_minutes, is_published)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.StartTime, e.EndTime, e.DurationMinutes, e.IsPublished,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	if err := copyExamQuestions(ctx, tx, e.ID, e.QuestionIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Update writes the exam row. When replaceQuestions is set the question links are replaced atomically.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam, replaceQuestions bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE exams
		 SET title = $2, start_time = $3, end_time = $4, duration_minutes = $5,
		     is_published = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		e.ID, e.Title, e.StartTime, e.EndTime, e.DurationMinutes, e.IsPublished,
	).Scan(&e.UpdatedAt)
	if err != nil {
		return notFound(err)
	}

	if replaceQuestions {
		if _, err := tx.Exec(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, e.ID); err != nil {
			return fmt.Errorf("clear exam questions: %w", err)
		}
		if err := copyExamQuestions(ctx, tx, e.ID, e.QuestionIDs); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SetPublished toggles the published flag.
func (r *ExamRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_published = $2, updated_at = NOW() WHERE id = $1`, id, published)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an exam together with its sessions and question links.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM exam_sessions WHERE exam_id = $1`, id); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, id); err != nil {
		return fmt.Errorf("delete exam questions: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func copyExamQuestions(ctx context.Context, tx pgx.Tx, examID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"exam_questions"},
		[]string{"exam_id", "question_id", "position"},
		pgx.CopyFromSlice(len(ids), func(i int) ([]any, error) {
			return []any{examID, ids[i], i}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy exam questions: %w", err)
	}
	return nil
}
