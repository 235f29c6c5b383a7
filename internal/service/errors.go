package service

import (
	"errors"
	"fmt"

	"bulksender/internal/dispatch"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// BusinessLogicError represents a business logic error
type BusinessLogicError struct {
	Message string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("business logic error: %s", e.Message)
}

// ConflictError represents a conflict error (e.g., duplicate)
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Message)
}

// IsClientError reports whether err is caused by the request rather than
// the system, so retrying the same request cannot succeed
func IsClientError(err error) bool {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		business   *BusinessLogicError
		conflict   *ConflictError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &validation) ||
		errors.As(err, &business) ||
		errors.As(err, &conflict)
}

// controllerError translates dispatch errors into service errors
func controllerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrInvalidTask):
		return &ValidationError{Message: err.Error()}
	case errors.Is(err, dispatch.ErrInvalidTransition):
		return &ConflictError{Resource: "campaign", Message: err.Error()}
	default:
		return err
	}
}
