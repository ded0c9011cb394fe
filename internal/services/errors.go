package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")

	// ErrResultPending means the request exists but has no result yet
	ErrResultPending = errors.New("appraisal result not ready")

	// ErrRequestNotFound means the appraisal request does not exist
	ErrRequestNotFound = errors.New("appraisal request not found")

	// ErrAppraisalFailed means the worker gave up on the request
	ErrAppraisalFailed = errors.New("appraisal failed")

	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyReviewed   = errors.New("item already reviewed by another collector")
)

// ValidationError reports a rejected input field. Nothing is written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AppraisalFailedError carries the reason recorded when a request was marked failed.
type AppraisalFailedError struct {
	RequestID uuid.UUID
	Reason    string
}

func (e *AppraisalFailedError) Error() string {
	return fmt.Sprintf("appraisal %s failed: %s", e.RequestID, e.Reason)
}

func (e *AppraisalFailedError) Is(target error) bool {
	return target == ErrAppraisalFailed
}

// isUniqueViolation reports a Postgres 23505 error from the pgx driver, or the
// dialect-neutral error when GORM's error translation is enabled.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
