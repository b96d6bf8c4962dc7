// Package resilience holds the retry policy of the ingestion engine.
//
// This package contains:
//   - Classifier: maps store errors to normalized ErrorDetails
//   - BackoffPolicy: computes the delay before the next retry
//   - CircuitBreaker: rolling-window breaker guarding batch starts
package resilience

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
)

// Provider code names accepted as explicit error codes.
var codeAliases = map[string]string{
	"badrequest":            domain.CodeBadRequest,
	"unauthorized":          domain.CodeUnauthorized,
	"forbidden":             domain.CodeForbidden,
	"notfound":              domain.CodeNotFound,
	"requesttimeout":        domain.CodeRequestTimeout,
	"conflict":              domain.CodeConflict,
	"preconditionfailed":    domain.CodePreconditionFailed,
	"requestentitytoolarge": domain.CodePayloadTooLarge,
	"toomanyrequests":       domain.CodeTooManyRequests,
	"retrywith":             domain.CodeRetryWith,
	"internalservererror":   domain.CodeInternal,
	"serviceunavailable":    domain.CodeServiceUnavailable,
}

// Classifier converts raw store errors into ErrorDetails.
type Classifier struct{}

// NewClassifier creates a new error classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify normalizes err. It is deterministic: the same error always yields the same details.
func (c *Classifier) Classify(err error) domain.ErrorDetails {
	if err == nil {
		return domain.ErrorDetails{Code: domain.CodeUnknown, Category: domain.CategoryPermanent}
	}

	details := domain.ErrorDetails{
		Code:    domain.CodeUnknown,
		Message: err.Error(),
	}

	var storeErr *storage.StoreError
	switch {
	case errors.As(err, &storeErr):
		details.Code = extractCode(storeErr)
		if storeErr.Message != "" {
			details.Message = storeErr.Message
		}
	case errors.Is(err, context.DeadlineExceeded):
		details.Code = domain.CodeRequestTimeout
	case errors.Is(err, context.Canceled):
		details.Code = domain.CodeCanceled
	}

	details.Category = categorize(details.Code, storeErr)
	details.Retryable = details.Category == domain.CategoryTransient ||
		details.Category == domain.CategoryRateLimited ||
		details.Category == domain.CategoryTransientAuth

	if details.Code == domain.CodeTooManyRequests && storeErr != nil {
		details.RetryAfter = retryAfter(storeErr)
	}

	return details
}

// extractCode: explicit code, then HTTP status, then sub-status header.
func extractCode(e *storage.StoreError) string {
	if e.Code != "" {
		if alias, ok := codeAliases[strings.ToLower(e.Code)]; ok {
			return alias
		}
		return e.Code
	}
	if e.StatusCode != 0 {
		return strconv.Itoa(e.StatusCode)
	}
	if sub := e.Header(storage.HeaderSubStatus); sub != "" {
		return sub
	}
	return domain.CodeUnknown
}

func categorize(code string, storeErr *storage.StoreError) domain.Category {
	switch code {
	case domain.CodeTooManyRequests:
		return domain.CategoryRateLimited
	case domain.CodeRequestTimeout, domain.CodeRetryWith, domain.CodeServiceUnavailable:
		return domain.CategoryTransient
	case domain.CodeForbidden:
		// Only an explicit token-expiry signal makes a 403 retryable.
		if storeErr != nil && storeErr.TokenExpired {
			return domain.CategoryTransientAuth
		}
		return domain.CategoryPermanent
	case domain.CodeValidation:
		return domain.CategoryValidation
	default:
		// 400, 401, 404, 409, 412, 413, 500 and anything unrecognized
		return domain.CategoryPermanent
	}
}

func retryAfter(e *storage.StoreError) time.Duration {
	raw := e.Header(storage.HeaderRetryAfterMs)
	if raw == "" {
		return 0
	}
	ms, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// StatusText returns a short description for a normalized code.
func StatusText(code string) string {
	switch code {
	case domain.CodeRetryWith:
		return "Retry With"
	case domain.CodeValidation:
		return "Validation Error"
	case domain.CodeCircuitOpen:
		return "Circuit Open"
	case domain.CodeCanceled:
		return "Canceled"
	case domain.CodeUnknown:
		return "Unknown"
	}
	if n, err := strconv.Atoi(code); err == nil {
		if text := http.StatusText(n); text != "" {
			return text
		}
	}
	return code
}
