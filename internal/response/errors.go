package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound       ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotStarted     ErrCode = "EXAM_NOT_STARTED"
	ErrExamEnded          ErrCode = "EXAM_ENDED"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrDuplicateQuestions ErrCode = "DUPLICATE_QUESTIONS"
	ErrUnknownQuestions   ErrCode = "UNKNOWN_QUESTIONS"
	ErrInvalidWindow      ErrCode = "INVALID_WINDOW"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrScoreOutOfRange  ErrCode = "SCORE_OUT_OF_RANGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamNotAvailable:
		return "This exam is not available."
	case ErrExamNotStarted:
		return "This exam has not started yet."
	case ErrExamEnded:
		return "This exam has already ended."
	case ErrNoQuestions:
		return "An exam without questions cannot be published."
	case ErrDuplicateQuestions:
		return "The question list contains duplicates."
	case ErrUnknownQuestions:
		return "One or more questions do not exist."
	case ErrInvalidWindow:
		return "End time must be after start time."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Session not found."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrQuestionNotFound:
		return "Question not found."
	case ErrScoreOutOfRange:
		return "Score must be between 0 and the question's maximum score."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
