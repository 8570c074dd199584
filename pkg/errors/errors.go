package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`

	// RetryAfterMs is set on RATE_LIMITED errors so the API layer can
	// emit a retry-after hint.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

func FailedPrecondition(msg string) error {
	return New(CodeFailedPrecondition, msg)
}

func RateLimited(msg string, retryAfterMs int64) error {
	return &AppError{Code: CodeRateLimited, Message: msg, RetryAfterMs: retryAfterMs}
}

func TransientTransport(msg string, cause error) error {
	return &AppError{Code: CodeTransientTransport, Message: msg, Cause: cause}
}

func FatalTransport(msg string, cause error) error {
	return &AppError{Code: CodeFatalTransport, Message: msg, Cause: cause}
}

func DependencyFailed(msg string, cause error) error {
	return &AppError{Code: CodeDependencyFailed, Message: msg, Cause: cause}
}

// CodeOf extracts the code from an error chain, CodeUnknown if none.
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func AsAppError(err error) (*AppError, bool) {
	var app *AppError
	ok := stderrors.As(err, &app)
	return app, ok
}
