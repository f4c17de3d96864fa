package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

const (
	ErrCodeNotFound    = "not_found"
	ErrCodeValidation  = "validation_error"
	ErrCodeDatabase    = "database_error"
	ErrCodeStorage     = "storage_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeSystemError = "system_error"
)

// Sentinels usable with errors.Is; matching is by code.
var (
	ErrNotFound    = &InternalError{Code: ErrCodeNotFound, Message: "resource not found"}
	ErrValidation  = &InternalError{Code: ErrCodeValidation, Message: "validation error"}
	ErrDatabase    = &InternalError{Code: ErrCodeDatabase, Message: "database error"}
	ErrStorage     = &InternalError{Code: ErrCodeStorage, Message: "storage error"}
	ErrUnavailable = &InternalError{Code: ErrCodeUnavailable, Message: "service unavailable"}
	ErrSystem      = &InternalError{Code: ErrCodeSystemError, Message: "system error"}

	statusCodeMap = map[string]int{
		ErrCodeNotFound:    http.StatusNotFound,
		ErrCodeValidation:  http.StatusBadRequest,
		ErrCodeDatabase:    http.StatusInternalServerError,
		ErrCodeStorage:     http.StatusBadGateway,
		ErrCodeUnavailable: http.StatusServiceUnavailable,
		ErrCodeSystemError: http.StatusInternalServerError,
	}
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is matches any InternalError carrying the same code.
func (e *InternalError) Is(target error) bool {
	t, ok := target.(*InternalError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newf(code string, err error, format string, args ...any) error {
	return errors.WithStackDepth(&InternalError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}, 2)
}

func NotFoundf(format string, args ...any) error {
	return newf(ErrCodeNotFound, nil, format, args...)
}

func Validationf(format string, args ...any) error {
	return newf(ErrCodeValidation, nil, format, args...)
}

func Unavailablef(format string, args ...any) error {
	return newf(ErrCodeUnavailable, nil, format, args...)
}

// WrapDatabase tags err as a database failure. nil stays nil.
func WrapDatabase(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return newf(ErrCodeDatabase, err, format, args...)
}

// WrapStorage tags err as an object store failure. nil stays nil.
func WrapStorage(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return newf(ErrCodeStorage, err, format, args...)
}

// WrapValidation tags err as bad input. nil stays nil.
func WrapValidation(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return newf(ErrCodeValidation, err, format, args...)
}

// Code extracts the error code, system_error for foreign errors.
func Code(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ErrCodeSystemError
}

// Message is the client-safe message of err.
func Message(err error) string {
	var ie *InternalError
	if errors.As(err, &ie) {
		if ie.Err != nil && ie.Code == ErrCodeValidation {
			return fmt.Sprintf("%s: %s", ie.Message, ie.Err.Error())
		}
		return ie.Message
	}
	return "internal server error"
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusCodeMap[Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
