package services

import (
	"errors"

	"github.com/synesthesie/artmarket/internal/repository"
)

// ErrorKind is the stable machine readable category of a ServiceError.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindValidation   ErrorKind = "validation_error"
	KindUpload       ErrorKind = "upload_error"
	KindDelete       ErrorKind = "delete_error"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInternal     ErrorKind = "internal_error"
)

// ServiceError represents public-facing errors from the artwork services.
// Message is safe to show to clients, Inner is only meant for logs.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Inner   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Inner
}

func NotFound(message string) error {
	return &ServiceError{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) error {
	return &ServiceError{Kind: KindForbidden, Message: message}
}

func Validation(message string, inner error) error {
	return &ServiceError{Kind: KindValidation, Message: message, Inner: inner}
}

func Unauthorized(message string) error {
	return &ServiceError{Kind: KindUnauthorized, Message: message}
}

func UploadFailed(inner error) error {
	return &ServiceError{Kind: KindUpload, Message: "Failed to upload images", Inner: inner}
}

func DeleteFailed(inner error) error {
	return &ServiceError{Kind: KindDelete, Message: "Failed to delete artwork", Inner: inner}
}

func Internal(operation string, inner error) error {
	return &ServiceError{Kind: KindInternal, Message: "Internal server error during " + operation, Inner: inner}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// wrapRepoError converts repository errors to service errors.
func wrapRepoError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return &ServiceError{Kind: KindNotFound, Message: "Artwork not found", Inner: err}
	}
	return Internal(operation, err)
}
