package engine

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"survey-backend/internal/store"
)

type AppError struct {
	Code      string        `json:"code"`
	Status    int           `json:"-"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// HTTPStatus lets middleware outside this package read the response status.
func (e *AppError) HTTPStatus() int {
	return e.Status
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

// RuleError reports editing rules that cannot be stored.
func RuleError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "INVALID_RULE",
		Status:  422,
		Message: "One or more editing rules are invalid",
		Details: details,
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

// RetryableConflictError is a conflict the client may resolve by sending the
// same request again.
func RetryableConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg, Retryable: true}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func UpstreamError(msg string) *AppError {
	return &AppError{Code: "UPSTREAM_ERROR", Status: 502, Message: msg}
}

func UnavailableError(msg string) *AppError {
	return &AppError{Code: "UNAVAILABLE", Status: 503, Message: msg}
}

// MapStoreError turns store sentinels into client errors. Anything else is
// returned unchanged and ends up as INTERNAL_ERROR.
func MapStoreError(err error, entity, id string) error {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError(entity, id)
	case errors.Is(err, store.ErrUniqueViolation):
		msg := fmt.Sprintf("%s already exists", entity)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			msg = pgErr.Detail
		}
		return ConflictError(msg)
	case errors.Is(err, store.ErrForeignKey):
		return ConflictError(fmt.Sprintf("%s %s is referenced by other records or references a missing one", entity, id))
	case errors.Is(err, store.ErrConflict):
		return RetryableConflictError("concurrent update, please retry")
	}
	return err
}
