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

// QuestionBank is question authoring as seen by the HTTP layer.
type QuestionBank interface {
	CreateQuestions(ctx context.Context, reqs []model.CreateQuestionRequest) (*model.BulkCreateQuestionsResult, error)
	List(ctx context.Context, f model.QuestionFilter) ([]model.Question, *response.Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Question, error)
}

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questions QuestionBank
	log       zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions QuestionBank, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		log:       log.With().Str("component", "question_handler").Logger(),
	}
}

// CreateQuestions godoc
// POST /api/v1/admin/questions
// Bulk import. Questions whose title already exists are reported under "skipped".
func (h *QuestionHandler) CreateQuestions(c *gin.Context) {
	var req model.BulkCreateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.questions.CreateQuestions(c.Request.Context(), req.Questions)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// ListQuestions godoc
// GET /api/v1/admin/questions?search=&tags=&complexity=&page=&per_page=
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	var filter model.QuestionFilter
	if fields := validator.BindQuery(c, &filter); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, pagination, err := h.questions.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, pagination)
}

// GetQuestion godoc
// GET /api/v1/admin/questions/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	q, err := h.questions.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": q})
}
