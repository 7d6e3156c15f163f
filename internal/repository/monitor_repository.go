package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// MonitorRepository provides read-only aggregates for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// CountByStatus returns the number of sessions per status for an exam.
func (r *MonitorRepository) CountByStatus(ctx context.Context, examID uuid.UUID) (map[model.SessionStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*)
		 FROM exam_sessions
		 WHERE exam_id = $1
		 GROUP BY status`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SessionStatus]int)
	for rows.Next() {
		var status model.SessionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
