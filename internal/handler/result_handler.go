package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// ResultHandler serves result queries and manual grading.
type ResultHandler struct {
	sessions SessionManager
	log      zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(sessions SessionManager, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		sessions: sessions,
		log:      log.With().Str("component", "result_handler").Logger(),
	}
}

// QueryResults godoc
// GET /api/v1/results?exam_id=&student_id=
// POST /api/v1/results {exam_id?, student_id?}
// Students only ever receive their own results.
func (h *ResultHandler) QueryResults(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var filter model.ResultFilter
	if c.Request.Method == http.MethodPost {
		if fields := validator.BindOptional(c, &filter); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	} else if filter, ok = queryResultFilter(c); !ok {
		return
	}

	results, err := h.sessions.QueryResults(c.Request.Context(), filter, caller)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if results == nil {
		results = []model.SessionResult{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GradeOverride godoc
// POST /api/v1/results/grade
// Sets a manual score on one question of a submitted session and returns the regraded result.
func (h *ResultHandler) GradeOverride(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var req model.GradeOverrideRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.GradeOverride(c.Request.Context(), req, caller)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// queryResultFilter reads exam_id and student_id query params. Blank params match everything.
func queryResultFilter(c *gin.Context) (model.ResultFilter, bool) {
	var filter model.ResultFilter
	for name, dst := range map[string]**uuid.UUID{
		"exam_id":    &filter.ExamID,
		"student_id": &filter.StudentID,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				name: name + " must be a valid UUID",
			})
			return model.ResultFilter{}, false
		}
		*dst = &id
	}
	return filter, true
}
