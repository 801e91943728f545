package errors

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Category is the retry class an error falls into.
type Category string

const (
	CategoryTransient  Category = "transient"
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryPermanent  Category = "permanent"
	CategoryUnknown    Category = "unknown"
)

// Blocking reports whether errors of this category can never be fixed by retrying.
func (c Category) Blocking() bool {
	return c == CategoryAuth || c == CategoryValidation || c == CategoryPermanent
}

// ClassifiedError is the retry policy derived from a failure.
type ClassifiedError struct {
	Category           Category `json:"category"`
	ShouldRetry        bool     `json:"should_retry"`
	MaxRetries         int      `json:"max_retries"`
	RequiresUserAction bool     `json:"requires_user_action"`
	UserMessage        string   `json:"user_message"`
	TechnicalMessage   string   `json:"technical_message"`
	HTTPStatus         int      `json:"http_status,omitempty"`
}

// HTTPError carries a response status directly.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
}

// ResponseError carries the status on a nested response, as returned by
// request helpers that keep the raw response around.
type ResponseError struct {
	Response struct {
		Status int
	}
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Response.Status, e.Message)
}

// PostgrestError is the error body returned by the remote query API.
type PostgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	// Status is the HTTP status the error arrived with, zero if unknown.
	Status int `json:"-"`
}

func (e *PostgrestError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type statusCoder interface {
	StatusCode() int
}

// postgrestStatus maps PostgREST and Postgres error codes back to HTTP statuses.
var postgrestStatus = map[string]int{
	"PGRST301": 401,
	"PGRST302": 401,
	"PGRST116": 404,
	"PGRST204": 400,
	"42501":    403,
	"23505":    409,
	"23502":    400,
	"23503":    400,
	"23514":    400,
	"22P02":    400,
}

var (
	networkPattern    = regexp.MustCompile(`(?i)network|timeout|timed out|connection refused|connection reset|econnrefused|econnreset|no such host|fetch failed|socket hang up|broken pipe|unreachable`)
	rateLimitPattern  = regexp.MustCompile(`(?i)rate limit|too many requests`)
	authPattern       = regexp.MustCompile(`(?i)unauthori[sz]ed|forbidden|jwt|token expired|invalid token|not authenticated|authentication`)
	validationPattern = regexp.MustCompile(`(?i)validation|invalid input|violates|constraint|malformed|required field`)
)

// HTTPStatus extracts an HTTP status from common error shapes.
func HTTPStatus(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var httpErr *HTTPError
	if pkgerrors.As(err, &httpErr) && httpErr.Status > 0 {
		return httpErr.Status, true
	}

	var respErr *ResponseError
	if pkgerrors.As(err, &respErr) && respErr.Response.Status > 0 {
		return respErr.Response.Status, true
	}

	var coder statusCoder
	if pkgerrors.As(err, &coder) && coder.StatusCode() > 0 {
		return coder.StatusCode(), true
	}

	var pgErr *PostgrestError
	if pkgerrors.As(err, &pgErr) {
		if pgErr.Status > 0 {
			return pgErr.Status, true
		}
		if status, ok := postgrestStatus[pgErr.Code]; ok {
			return status, true
		}
	}

	return 0, false
}

func isNetworkError(err error) bool {
	if pkgerrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if pkgerrors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return pkgerrors.As(err, &opErr)
}

// Classify maps an error onto a retry category. The first matching rule wins.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Category: CategoryUnknown, ShouldRetry: true, MaxRetries: 3}
	}

	msg := err.Error()
	status, hasStatus := HTTPStatus(err)

	result := ClassifiedError{TechnicalMessage: msg}
	if hasStatus {
		result.HTTPStatus = status
	}

	switch {
	case isNetworkError(err) || networkPattern.MatchString(msg):
		result.Category = CategoryTransient
		result.ShouldRetry = true
		result.MaxRetries = 10
		result.UserMessage = "Network problem. Changes will sync when the connection improves."

	case status == 429 || rateLimitPattern.MatchString(msg):
		result.Category = CategoryTransient
		result.ShouldRetry = true
		result.MaxRetries = 5
		result.UserMessage = "The server is busy. Sync will retry shortly."

	case status == 401 || status == 403 || authPattern.MatchString(msg):
		result.Category = CategoryAuth
		result.RequiresUserAction = true
		result.UserMessage = "Your session has expired. Please sign in again."

	case status == 400 || status == 422 || validationPattern.MatchString(msg):
		result.Category = CategoryValidation
		result.RequiresUserAction = true
		result.UserMessage = "Some data was rejected by the server. Please review the record."

	case status == 503:
		result.Category = CategoryTransient
		result.ShouldRetry = true
		result.MaxRetries = 10
		result.UserMessage = "The server is temporarily unavailable. Sync will retry."

	case status >= 500:
		result.Category = CategoryPermanent
		result.UserMessage = "The server could not process this change."

	case status == 404:
		result.Category = CategoryPermanent
		result.UserMessage = "The record no longer exists on the server."

	default:
		// Unknown failures may be transient; the low cap keeps them from looping forever.
		result.Category = CategoryUnknown
		result.ShouldRetry = true
		result.MaxRetries = 3
		result.UserMessage = "Sync failed unexpectedly. It will be retried."
	}

	return result
}

// IsRetryable is shorthand for Classify(err).ShouldRetry.
func IsRetryable(err error) bool {
	return Classify(err).ShouldRetry
}

// Summary renders a classified error for logs without user-facing wording.
func (c ClassifiedError) Summary() string {
	var b strings.Builder
	b.WriteString(string(c.Category))
	if c.HTTPStatus > 0 {
		fmt.Fprintf(&b, " (%d)", c.HTTPStatus)
	}
	if c.TechnicalMessage != "" {
		b.WriteString(": ")
		b.WriteString(c.TechnicalMessage)
	}
	return b.String()
}
