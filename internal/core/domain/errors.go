package domain

import "time"

// Normalized error codes. HTTP-like statuses are kept as their numeric string.
const (
	CodeBadRequest         = "400"
	CodeUnauthorized       = "401"
	CodeForbidden          = "403"
	CodeNotFound           = "404"
	CodeRequestTimeout     = "408"
	CodeConflict           = "409"
	CodePreconditionFailed = "412"
	CodePayloadTooLarge    = "413"
	CodeTooManyRequests    = "429"
	CodeRetryWith          = "449"
	CodeInternal           = "500"
	CodeServiceUnavailable = "503"

	CodeValidation  = "VALIDATION_ERROR"
	CodeCircuitOpen = "CIRCUIT_OPEN"
	CodeCanceled    = "CANCELED"
	CodeUnknown     = "UNKNOWN"
)

// Category is the retry class of an error.
type Category int

const (
	CategoryPermanent Category = iota
	CategoryTransient
	CategoryRateLimited
	CategoryTransientAuth
	CategoryValidation
)

func (c Category) String() string {
	switch c {
	case CategoryPermanent:
		return "permanent"
	case CategoryTransient:
		return "transient"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryTransientAuth:
		return "transient_auth"
	case CategoryValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// ErrorDetails is the normalized form of a store or validation error.
type ErrorDetails struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // 0 = unset
	Category   Category      `json:"category"`
}

// ValidationError builds the details for a document rejected before insertion.
func ValidationError(msg string) ErrorDetails {
	return ErrorDetails{
		Code:     CodeValidation,
		Message:  msg,
		Category: CategoryValidation,
	}
}
