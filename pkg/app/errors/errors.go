// Package errors defines the error taxonomy shared by the agent services.
// Callers classify failures into categories; the HTTP layer maps each
// category onto a status code without inspecting the underlying error.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError for transport mapping and retry
// decisions.
type Category int

const (
	// CategoryDataError marks malformed input, a missing field or an
	// out-of-range value.
	CategoryDataError Category = iota + 1
	// CategoryUnauthorized marks a request without valid credentials.
	CategoryUnauthorized
	// CategoryForbidden marks a request acting on a resource the caller
	// does not own.
	CategoryForbidden
	// CategoryResourceNotFound marks a lookup of a record that does not
	// exist.
	CategoryResourceNotFound
	// CategoryDataConflict marks a write that lost a race with another
	// writer, safe to retry.
	CategoryDataConflict
	// CategoryBusinessRule marks a well-formed request that violates a
	// lending rule (insufficient credit, self-vouching, debt already
	// settled). Never retried.
	CategoryBusinessRule
	// CategoryDependencyFailure marks a collaborator (store, oracle,
	// settlement network) failing in a recoverable way.
	CategoryDependencyFailure
	// CategoryGeneralError marks an unexpected internal failure.
	CategoryGeneralError
)

var categoryNames = map[Category]string{
	CategoryDataError:         "CategoryDataError",
	CategoryUnauthorized:      "CategoryUnauthorized",
	CategoryForbidden:         "CategoryForbidden",
	CategoryResourceNotFound:  "CategoryResourceNotFound",
	CategoryDataConflict:      "CategoryDataConflict",
	CategoryBusinessRule:      "CategoryBusinessRule",
	CategoryDependencyFailure: "CategoryDependencyFailure",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "CategoryGeneralError"
}

var categoryStatus = map[Category]int{
	CategoryDataError:         http.StatusBadRequest,
	CategoryUnauthorized:      http.StatusUnauthorized,
	CategoryForbidden:         http.StatusForbidden,
	CategoryResourceNotFound:  http.StatusNotFound,
	CategoryDataConflict:      http.StatusConflict,
	CategoryBusinessRule:      http.StatusUnprocessableEntity,
	CategoryDependencyFailure: http.StatusBadGateway,
}

// ServiceError carries a category, a client-safe message, and the
// underlying cause. The cause is for logs only and never reaches the
// client.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode maps the error category to an HTTP status code.
func (err ServiceError) StatusCode() int {
	if code, ok := categoryStatus[err.Category]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a ServiceError of the given category.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// BadRequestError wraps err as a CategoryDataError with a client-safe
// message.
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

// UnAuthorizedError wraps err as a CategoryUnauthorized error.
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message)
}

// ForbiddenError wraps err as a CategoryForbidden error.
func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message)
}

// ResourceNotFoundError wraps err as a CategoryResourceNotFound error.
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

// ConflictError wraps err as a CategoryDataConflict error.
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message)
}

// BusinessRuleError wraps err as a CategoryBusinessRule error.
func BusinessRuleError(err error, message string) error {
	return newError(CategoryBusinessRule, err, message)
}

// DependencyError wraps err as a CategoryDependencyFailure error.
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}

// GeneralError wraps err as an internal failure. The client only ever
// sees "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error")
}
