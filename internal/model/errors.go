package model

import (
	"errors"
	"fmt"
)

// ErrorCode is the enumerated kind carried in every error body.
type ErrorCode string

const (
	CodeIncorrectCredentials ErrorCode = "IncorrectCredentials"
	CodeUnauthorized         ErrorCode = "Unauthorized"
	CodeBadRequest           ErrorCode = "BadRequest"
	CodeNotFound             ErrorCode = "NotFound"
	CodeInternalError        ErrorCode = "InternalServerError"
	CodeHashingError         ErrorCode = "HashingError"
	CodeCheckViolation       ErrorCode = "CheckViolation"
	CodeForeignKeyError      ErrorCode = "ForeignKeyError"
	CodeUniqueViolation      ErrorCode = "UniqueViolation"
	CodeTooManyRequests      ErrorCode = "TooManyRequests"
)

var defaultMessages = map[ErrorCode]string{
	CodeIncorrectCredentials: "Incorrect username or password",
	CodeUnauthorized:         "Unauthorized",
	CodeBadRequest:           "Bad request",
	CodeNotFound:             "Not found",
	CodeInternalError:        "Internal server error",
	CodeHashingError:         "Internal server error",
	CodeCheckViolation:       "Check constraint failed",
	CodeForeignKeyError:      "Foreign key constraint fails",
	CodeUniqueViolation:      "Value already exists",
	CodeTooManyRequests:      "Too many requests",
}

// Error is the classified error passed between layers.
// Err keeps the underlying cause for logs; it is never sent to clients.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code ErrorCode, message string, cause error) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message, Err: cause}
}

var (
	ErrIncorrectCredentials = NewError(CodeIncorrectCredentials, "", nil)
	ErrUnauthorized         = NewError(CodeUnauthorized, "", nil)
	ErrBadRequest           = NewError(CodeBadRequest, "", nil)
	ErrNotFound             = NewError(CodeNotFound, "", nil)
	ErrInternal             = NewError(CodeInternalError, "", nil)
	ErrHashing              = NewError(CodeHashingError, "", nil)
	ErrUniqueViolation      = NewError(CodeUniqueViolation, "", nil)
	ErrForeignKey           = NewError(CodeForeignKeyError, "", nil)
	ErrCheckViolation       = NewError(CodeCheckViolation, "", nil)
)

func Internal(cause error) *Error { return NewError(CodeInternalError, "", cause) }

func Hashing(cause error) *Error { return NewError(CodeHashingError, "", cause) }

func BadRequest(message string) *Error { return NewError(CodeBadRequest, message, nil) }

// CodeOf returns the classified code of err; unclassified errors are internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}

// PublicError is the body sent to clients for err.
func PublicError(err error) ErrorResponse {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}
	msg := e.Message
	if e.Code == CodeInternalError || e.Code == CodeHashingError {
		msg = defaultMessages[e.Code]
	}
	return ErrorResponse{Code: e.Code, Message: msg}
}
