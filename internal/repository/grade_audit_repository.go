package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

var gradeAuditColumns = []string{
	"session_id", "exam_id", "student_id", "question_id",
	"new_score", "previous_score", "total", "graded_by", "graded_at",
}

// GradeAuditRepository persists manual grade override records.
type GradeAuditRepository struct {
	pool *pgxpool.Pool
}

// NewGradeAuditRepository creates a new GradeAuditRepository.
func NewGradeAuditRepository(pool *pgxpool.Pool) *GradeAuditRepository {
	return &GradeAuditRepository{pool: pool}
}

// InsertBatch writes all audits with COPY.
func (r *GradeAuditRepository) InsertBatch(ctx context.Context, audits []model.GradeAudit) error {
	if len(audits) == 0 {
		return nil
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"grade_audits"},
		gradeAuditColumns,
		pgx.CopyFromSlice(len(audits), func(i int) ([]any, error) {
			a := audits[i]
			return []any{a.SessionID, a.ExamID, a.StudentID, a.QuestionID,
				a.NewScore, a.PreviousScore, a.Total, a.GradedBy, a.GradedAt}, nil
		}),
	)
	return err
}

// Insert writes a single audit row.
func (r *GradeAuditRepository) Insert(ctx context.Context, a model.GradeAudit) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO grade_audits (session_id, exam_id, student_id, question_id,
		                           new_score, previous_score, total, graded_by, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.SessionID, a.ExamID, a.StudentID, a.QuestionID,
		a.NewScore, a.PreviousScore, a.Total, a.GradedBy, a.GradedAt,
	)
	return err
}
