package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

func (f *fakeSessionStore) CountByStatus(_ context.Context, examID uuid.UUID) (map[model.SessionStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.SessionStatus]int)
	for _, s := range f.sessions {
		if s.ExamID == examID {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func TestMonitorSnapshot(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "x", DurationMinutes: 10}
	sessions := newFakeSessionStore()
	for _, st := range []model.SessionStatus{model.SessionStatusInProgress, model.SessionStatusInProgress, model.SessionStatusSubmitted} {
		sessions.put(&model.ExamSession{ID: uuid.New(), ExamID: exam.ID, StudentID: uuid.New(), Status: st})
	}
	sessions.put(&model.ExamSession{ID: uuid.New(), ExamID: uuid.New(), StudentID: uuid.New(), Status: model.SessionStatusSubmitted})

	svc := NewMonitorService(sessions, newFakeExamStore(exam))

	snap, err := svc.Snapshot(context.Background(), exam.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.InProgress != 2 || snap.Submitted != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if _, err := svc.Snapshot(context.Background(), uuid.New()); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("expected ErrExamNotFound, got %v", err)
	}
}
