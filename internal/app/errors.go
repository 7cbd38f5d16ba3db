package app

import "fmt"

// DomainError is a service-level failure the HTTP layer can map directly:
// Status becomes the response code and Code/Message/Details the error body.
// Board and proposal operations return these for every rejected request
// (unknown column, incomplete checklist, missing approval).
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
