// Package apperr maps pipeline failures to client-facing error codes and
// HTTP statuses. Diagnostics stay in the wrapped error; Message is safe to
// show to a user.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/github"
	"github.com/n0madic/go-appforge/internal/normalize"
	"github.com/n0madic/go-appforge/internal/prompt"
	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/upstream"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"     // 400
	CodeUnauthorized     Code = "UNAUTHORIZED"      // 401
	CodeNotFound         Code = "NOT_FOUND"         // 404
	CodeConflict         Code = "CONFLICT"          // 409
	CodeGenerationFailed Code = "GENERATION_FAILED" // 422
	CodeConfiguration    Code = "CONFIGURATION"     // 500
	CodeInternal         Code = "INTERNAL"          // 500
	CodeTransport        Code = "TRANSPORT"         // 502
)

// User-facing messages.
const (
	MsgTransport        = "generation service unavailable, please retry"
	MsgGenerationFailed = "could not understand the generated result"
)

// Error is a classified failure.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewInvalidInput creates a 400 error.
func NewInvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Status: http.StatusBadRequest, Message: msg}
}

// NewNotFound creates a 404 error for a missing bundle.
func NewNotFound(id string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("bundle not found: %s", id)}
}

// NewInternal creates a 500 error that does not leak err to the client.
func NewInternal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// From classifies err. A nil err yields nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var (
		appErr  *Error
		cfgErr  *config.Error
		trErr   *upstream.TransportError
		normErr *normalize.Error
		ghErr   *github.APIError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, prompt.ErrInvalidInput):
		return &Error{Code: CodeInvalidInput, Status: http.StatusBadRequest, Message: prompt.ErrInvalidInput.Error(), Err: err}
	case errors.Is(err, github.ErrInvalidName):
		return &Error{Code: CodeInvalidInput, Status: http.StatusBadRequest, Message: github.ErrInvalidName.Error(), Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: "bundle not found", Err: err}
	case errors.As(err, &cfgErr):
		return &Error{Code: CodeConfiguration, Status: http.StatusInternalServerError, Message: "server is not configured for this operation", Err: err}
	case errors.As(err, &normErr):
		return &Error{Code: CodeGenerationFailed, Status: http.StatusUnprocessableEntity, Message: MsgGenerationFailed, Err: err}
	case errors.As(err, &trErr), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTransport, Status: http.StatusBadGateway, Message: MsgTransport, Err: err}
	case errors.As(err, &ghErr):
		if ghErr.StatusCode == http.StatusUnprocessableEntity {
			return &Error{Code: CodeConflict, Status: http.StatusConflict, Message: ghErr.Message, Err: err}
		}
		return &Error{Code: CodeTransport, Status: http.StatusBadGateway, Message: "GitHub request failed: " + ghErr.Message, Err: err}
	}
	return NewInternal(err)
}

// Is reports whether err classifies as code.
func Is(err error, code Code) bool {
	e := From(err)
	return e != nil && e.Code == code
}
