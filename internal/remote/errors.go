package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	srbhttp "github.com/transana/srbxfer/internal/http"
)

// Status codes returned by remote calls. Every failure is negative.
const (
	StatusGeneric      = -1000
	StatusNotFound     = -1001
	StatusExists       = -1002
	StatusBadHandle    = -1003
	StatusAccessDenied = -1004
	StatusIO           = -1005
	StatusCancelled    = -1006
	StatusUnsupported  = -1007
	StatusBadRequest   = -1008
)

var statusText = map[int]string{
	StatusGeneric:      "remote store error",
	StatusNotFound:     "object not found",
	StatusExists:       "object already exists",
	StatusBadHandle:    "invalid object handle",
	StatusAccessDenied: "access denied",
	StatusIO:           "remote i/o error",
	StatusCancelled:    "operation cancelled",
	StatusUnsupported:  "operation not supported",
	StatusBadRequest:   "bad request",
}

// StatusText returns a human-readable description of a status code.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return fmt.Sprintf("status %d", code)
}

// Sentinel errors for errors.Is comparisons. They match any *StatusError
// with the same code.
var (
	ErrNotFound     = &StatusError{Code: StatusNotFound}
	ErrExists       = &StatusError{Code: StatusExists}
	ErrBadHandle    = &StatusError{Code: StatusBadHandle}
	ErrAccessDenied = &StatusError{Code: StatusAccessDenied}
	ErrCancelled    = &StatusError{Code: StatusCancelled}
)

// StatusError is the error type returned by every Store call.
type StatusError struct {
	Op         string // "open", "create", "read", "write", "close", "remove", "size"
	Collection string
	Name       string
	Code       int
	Err        error
}

func (e *StatusError) Error() string {
	msg := StatusText(e.Code)
	target := e.Name
	if e.Collection != "" {
		target = e.Collection + "/" + e.Name
	}
	prefix := "remote"
	if e.Op != "" {
		prefix += " " + e.Op
	}
	if target != "" {
		prefix += " " + target
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%d): %v", prefix, msg, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%d)", prefix, msg, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is matches sentinel StatusErrors by code.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Code == e.Code
}

// NewError builds a StatusError for op on collection/name. When code is zero
// it is derived from err with Classify.
func NewError(op, collection, name string, code int, err error) *StatusError {
	if code == 0 {
		code = Classify(err)
	}
	return &StatusError{Op: op, Collection: collection, Name: name, Code: code, Err: err}
}

// HandleError reports a call made with a handle the store does not know.
func HandleError(op string, h Handle) *StatusError {
	return &StatusError{Op: op, Code: StatusBadHandle, Err: fmt.Errorf("handle %d", h)}
}

// CodeOf extracts the status code from err, or 0 if err is not a StatusError.
func CodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Classify maps generic errors onto status codes. Backends map their SDK
// error codes first and fall back to this.
func Classify(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, fs.ErrNotExist):
		return StatusNotFound
	case errors.Is(err, fs.ErrExist):
		return StatusExists
	case errors.Is(err, fs.ErrPermission):
		return StatusAccessDenied
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	switch class := srbhttp.ClassifyError(err); {
	case class == srbhttp.ClassAccess:
		return StatusAccessDenied
	case class.Retryable():
		return StatusIO
	}
	return StatusGeneric
}
