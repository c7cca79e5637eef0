// Package server provides the HTTP REST API for the resume screener.
package server

import (
	"fmt"
	"net/http"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the requested resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict indicates the request conflicts with the resource's state,
// such as cancelling a completed interview
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrNotReady indicates the analysis has not finished, so results cannot be
// served yet. Status carries the job's current state for the response body.
type ErrNotReady struct {
	RequirementID string
	Status        string
	Progress      int
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("analysis %s is not completed yet (status: %s, progress: %d%%)",
		e.RequirementID, e.Status, e.Progress)
}

// ErrUpstream indicates the evaluation workflow rejected or never received
// the submission
type ErrUpstream struct {
	Message string
	Cause   error
}

func (e *ErrUpstream) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation workflow error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("evaluation workflow error: %s", e.Message)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch err.(type) {
	case *ErrValidation:
		return http.StatusBadRequest
	case *ErrNotFound:
		return http.StatusNotFound
	case *ErrConflict:
		return http.StatusBadRequest
	case *ErrNotReady:
		return http.StatusBadRequest
	case *ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
