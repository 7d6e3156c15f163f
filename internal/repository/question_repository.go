package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const questionColumns = `id, title, description, complexity, type, options, correct_answers, max_score, tags, created_at`

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &q.Complexity, &q.Type,
		&q.Options, &q.CorrectAnswers, &q.MaxScore, &q.Tags, &q.CreatedAt); err != nil {
		return nil, err
	}
	if q.Options == nil {
		q.Options = []any{}
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q, nil
}

// GetByID retrieves a question by its UUID.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// GetByIDs retrieves the questions that exist among ids. Order is unspecified.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1::uuid[])`, strIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// ExistingTitles returns the subset of titles already present in the bank.
func (r *QuestionRepository) ExistingTitles(ctx context.Context, titles []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(titles) == 0 {
		return existing, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT title FROM questions WHERE title = ANY($1)`, titles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		existing[title] = true
	}
	return existing, rows.Err()
}

// CreateMany inserts all questions in one transaction, filling in ids and timestamps.
func (r *QuestionRepository) CreateMany(ctx context.Context, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range questions {
		q := &questions[i]
		correct, err := jsonbArg(q.CorrectAnswers)
		if err != nil {
			return fmt.Errorf("encode correct answers of %q: %w", q.Title, err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (title, description, complexity, type, options, correct_answers, max_score, tags)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at`,
			q.Title, q.Description, q.Complexity, q.Type,
			q.Options, correct, q.MaxScore, q.Tags,
		).Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert question %q: %w", q.Title, err)
		}
	}

	return tx.Commit(ctx)
}

// List returns a filtered page of questions and the total match count.
// Search, tag and complexity filters are case-insensitive.
func (r *QuestionRepository) List(ctx context.Context, f model.QuestionFilter) ([]model.Question, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("lower(title) LIKE $%d", len(args)))
	}
	if tag := strings.TrimSpace(f.Tag); tag != "" {
		args = append(args, strings.ToLower(tag))
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) t WHERE lower(t) = $%d)", len(args)))
	}
	if c := strings.TrimSpace(f.Complexity); c != "" {
		args = append(args, "%"+strings.ToLower(c)+"%")
		where = append(where, fmt.Sprintf("lower(complexity) LIKE $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM questions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + questionColumns + " FROM questions" + clause +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.PerPage, f.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		questions = append(questions, *q)
	}
	return questions, total, rows.Err()
}
