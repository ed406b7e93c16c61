package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	ErrConfiguration          = NewError("CONFIGURATION_ERROR", "invalid configuration", http.StatusInternalServerError)
	ErrUnknownFilterKey       = NewError("UNKNOWN_FILTER_KEY", "unknown filter key", http.StatusBadRequest)
	ErrInvalidFilterValue     = NewError("INVALID_FILTER_VALUE", "invalid filter value", http.StatusBadRequest)
	ErrFeatureNotAvailable    = NewError("FEATURE_NOT_AVAILABLE", "feature not available", http.StatusBadRequest)
	ErrSubqueryArityMismatch  = NewError("SUBQUERY_ARITY_MISMATCH", "subquery arity mismatch", http.StatusInternalServerError)
	ErrDatabaseUnavailable    = NewError("DATABASE_UNAVAILABLE", "database unavailable", http.StatusServiceUnavailable)
	ErrDatabaseConnectionLost = NewError("DATABASE_CONNECTION_LOST", "database connection lost", http.StatusInternalServerError)
	ErrUnexpectedQuery        = NewError("UNEXPECTED_QUERY_ERROR", "unexpected query error", http.StatusInternalServerError)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// Error is the typed application error. Code identifies the kind, Status the
// HTTP status an endpoint should answer with.
type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so errors.Is(err, ErrUnknownFilterKey) works on copies
// produced by WithCause/WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsRetryable reports whether a fresh attempt can succeed. Only connection
// level failures qualify unless overridden with AsRetryable/AsFatal.
func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.Code == ErrDatabaseConnectionLost.Code || e.Code == ErrDatabaseUnavailable.Code
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsConfiguration(err error) bool {
	return hasCode(err, ErrConfiguration.Code)
}

func IsUnknownFilterKey(err error) bool {
	return hasCode(err, ErrUnknownFilterKey.Code)
}

func IsInvalidFilterValue(err error) bool {
	return hasCode(err, ErrInvalidFilterValue.Code)
}

func IsFeatureNotAvailable(err error) bool {
	return hasCode(err, ErrFeatureNotAvailable.Code)
}

func IsDatabaseUnavailable(err error) bool {
	return hasCode(err, ErrDatabaseUnavailable.Code)
}

func IsConnectionLost(err error) bool {
	return hasCode(err, ErrDatabaseConnectionLost.Code)
}

// IsClientError reports errors caused by the request rather than the service.
func IsClientError(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status >= 400 && appErr.Status < 500
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		details := make(map[string]interface{}, len(appErr.Details))
		for k, v := range appErr.Details {
			if k == "stack_trace" {
				continue
			}
			details[k] = v
		}
		if len(details) > 0 {
			response["details"] = details
		}
	}

	return response
}
