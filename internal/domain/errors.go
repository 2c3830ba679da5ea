package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that carry an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("version conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedContent indicates a document content tree that could not
	// be parsed. Callers must degrade (empty task list, failed toggle),
	// never crash.
	ErrMalformedContent = errors.New("malformed content tree")
)

// VersionConflictError is returned when a push submits a version older than
// the stored row. It carries the authoritative server version so the caller
// can re-pull and resolve. The stored row is guaranteed untouched.
type VersionConflictError struct {
	EntityKind       string // "document" or "workspace"
	EntityID         string
	SubmittedVersion int64
	ServerVersion    int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s: submitted version %d is behind server version %d",
		e.EntityKind, e.EntityID, e.SubmittedVersion, e.ServerVersion)
}

func (e *VersionConflictError) StatusCode() int { return http.StatusConflict }

// Is allows errors.Is() to match against ErrConflict
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrConflict
}
