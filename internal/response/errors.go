package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidEntryToken   ErrCode = "INVALID_ENTRY_TOKEN"
	ErrMaxAttemptsReached  ErrCode = "MAX_ATTEMPTS_REACHED"
	ErrAttemptNotActive    ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptFinalized    ErrCode = "ATTEMPT_FINALIZED"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrPauseNotAllowed     ErrCode = "PAUSE_NOT_ALLOWED"
	ErrAttemptNotFound     ErrCode = "ATTEMPT_NOT_FOUND"
	ErrCertificateNotFound ErrCode = "CERTIFICATE_NOT_FOUND"
	ErrNotEligible         ErrCode = "NOT_ELIGIBLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrInvalidEntryToken:
		return "The exam entry token is invalid."
	case ErrMaxAttemptsReached:
		return "You have used all allowed attempts for this exam."
	case ErrAttemptNotActive:
		return "There is no active attempt for this exam."
	case ErrAttemptFinalized:
		return "This attempt has already been finalized."
	case ErrInvalidTransition:
		return "This action is not valid in the attempt's current state."
	case ErrPauseNotAllowed:
		return "Pausing is not allowed for this exam."
	case ErrAttemptNotFound:
		return "Attempt not found."
	case ErrCertificateNotFound:
		return "Certificate not found."
	case ErrNotEligible:
		return "This score does not qualify for a certificate."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
