package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// ExamCatalog is exam authoring as seen by the HTTP layer.
type ExamCatalog interface {
	Get(ctx context.Context, id uuid.UUID, caller model.Caller) (*model.Exam, error)
	List(ctx context.Context, caller model.Caller) ([]model.Exam, error)
	Create(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error)
	Update(ctx context.Context, id uuid.UUID, req model.UpdateExamRequest) (*model.Exam, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Unpublish(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	exams ExamCatalog
	log   zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams ExamCatalog, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams: exams,
		log:   log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/exams
// Admins see every exam; students only published ones.
func (h *ExamHandler) ListExams(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	exams, err := h.exams.List(c.Request.Context(), caller)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.Get(c.Request.Context(), id, caller)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// CreateExam godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/admin/exams/:id
// Partial update. A questions list replaces the whole sequence.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Update(c.Request.Context(), id, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/admin/exams/:id
// Removes the exam together with its sessions and question links.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.exams.Delete(c.Request.Context(), id); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted successfully"})
}

// PublishExam godoc
// POST /api/v1/admin/exams/:id/publish
// Publishes an exam and warms its sanitized payload cache.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	exam, err := h.exams.Publish(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UnpublishExam godoc
// POST /api/v1/admin/exams/:id/unpublish
func (h *ExamHandler) UnpublishExam(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	exam, err := h.exams.Unpublish(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}
