package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func permissionDenied(message string) *DomainError {
	if message == "" {
		message = "Forbidden"
	}
	return domainError(http.StatusForbidden, "PERMISSION_DENIED", message, nil)
}

func notFound(message string) *DomainError {
	if message == "" {
		message = "Not found"
	}
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func invalidStructure(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_STRUCTURE", message, details)
}

func conflict() *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", "Concurrent structural change, retry", map[string]any{"retryable": true})
}
