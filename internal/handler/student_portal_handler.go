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

// SessionManager is the exam session lifecycle as seen by the HTTP and WebSocket layers.
type SessionManager interface {
	Start(ctx context.Context, examID, studentID uuid.UUID) (*model.SessionView, error)
	Autosave(ctx context.Context, examID, studentID uuid.UUID, req model.AutosaveRequest) error
	Submit(ctx context.Context, examID, studentID uuid.UUID, req model.SubmitRequest) (*model.SessionResult, error)
	QueryResults(ctx context.Context, filter model.ResultFilter, caller model.Caller) ([]model.SessionResult, error)
	GradeOverride(ctx context.Context, req model.GradeOverrideRequest, caller model.Caller) (*model.SessionResult, error)
}

// AvailableExamLister lists exams a student can start right now.
type AvailableExamLister interface {
	ListAvailable(ctx context.Context) ([]model.Exam, error)
}

// StudentPortalHandler handles student-facing endpoints (exam taking, own results).
type StudentPortalHandler struct {
	sessions SessionManager
	exams    AvailableExamLister
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessions SessionManager, exams AvailableExamLister, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessions: sessions,
		exams:    exams,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// ListAvailableExams godoc
// GET /api/v1/student/exams
// Returns published exams whose availability window is open.
func (h *StudentPortalHandler) ListAvailableExams(c *gin.Context) {
	exams, err := h.exams.ListAvailable(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartExam godoc
// POST /api/v1/exams/:exam_id/start
// Creates the student's session or resumes the in-progress one.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	examID, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.sessions.Start(c.Request.Context(), examID, caller.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// Autosave godoc
// PUT /api/v1/exams/:exam_id/session
// Replaces the stored answers and/or remaining time of the in-progress session.
func (h *StudentPortalHandler) Autosave(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	examID, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.Autosave(c.Request.Context(), examID, caller.ID, req); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitExam godoc
// POST /api/v1/exams/:exam_id/submit
// Merges final answers, grades the session and closes it. The body is optional.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	examID, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), examID, caller.ID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// MyResults godoc
// GET /api/v1/student/results
// Returns the caller's own submitted sessions, optionally for one exam.
func (h *StudentPortalHandler) MyResults(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	filter, ok := queryResultFilter(c)
	if !ok {
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
