package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// SessionCounter aggregates session counts per status.
type SessionCounter interface {
	CountByStatus(ctx context.Context, examID uuid.UUID) (map[model.SessionStatus]int, error)
}

// MonitorService builds live monitor snapshots.
type MonitorService struct {
	counter SessionCounter
	exams   ExamReader
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(counter SessionCounter, exams ExamReader) *MonitorService {
	return &MonitorService{counter: counter, exams: exams}
}

// Snapshot returns session counts for an exam. Fails with ErrExamNotFound for unknown exams.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return nil, mapExamErr(err)
	}

	counts, err := s.counter.CountByStatus(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	return &model.MonitorSnapshot{
		ExamID:     examID,
		InProgress: counts[model.SessionStatusInProgress],
		Submitted:  counts[model.SessionStatusSubmitted],
	}, nil
}
