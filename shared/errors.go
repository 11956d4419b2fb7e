package shared

import (
	"errors"
	"net/http"
)

// AppError carries an HTTP status alongside the wrapped cause so handlers can
// surface it without switching on error strings.
type AppError struct {
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(statusCode int, cause error, message string) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, cause: cause}
}

func NewBadRequestError(cause error, message string) *AppError {
	return NewAppError(http.StatusBadRequest, cause, message)
}

func NewUnauthorizedError(cause error, message string) *AppError {
	return NewAppError(http.StatusUnauthorized, cause, message)
}

func NewInternalError(cause error, message string) *AppError {
	return NewAppError(http.StatusInternalServerError, cause, message)
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
