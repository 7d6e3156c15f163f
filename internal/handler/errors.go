package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// classify maps a service error to its HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusBadRequest, response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamEnded):
		return http.StatusBadRequest, response.ErrExamEnded
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, service.ErrScoreOutOfRange):
		return http.StatusBadRequest, response.ErrScoreOutOfRange
	case errors.Is(err, service.ErrDuplicateQuestions):
		return http.StatusBadRequest, response.ErrDuplicateQuestions
	case errors.Is(err, service.ErrUnknownQuestions):
		return http.StatusBadRequest, response.ErrUnknownQuestions
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusBadRequest, response.ErrNoQuestions
	case errors.Is(err, service.ErrInvalidWindow):
		return http.StatusBadRequest, response.ErrInvalidWindow
	case errors.Is(err, service.ErrInvalidPayload):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the error response for err. Unclassified errors are logged and hidden behind INTERNAL_ERROR.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, ve.Fields)
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func currentCaller(c *gin.Context) (model.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.Caller{}, false
	}
	return caller, true
}
