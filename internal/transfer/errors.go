package transfer

import (
	"errors"
	"fmt"

	"github.com/transana/srbxfer/internal/remote"
)

var (
	// ErrRemote matches every *RemoteError.
	ErrRemote = errors.New("remote store error")
	// ErrLocal matches every *LocalError.
	ErrLocal = errors.New("local file error")
	// ErrShortRead is wrapped by a LocalError when the local file ends
	// before FileSize bytes were read.
	ErrShortRead = errors.New("local file shorter than expected size")
	// ErrInvalidRequest is returned for requests that cannot start.
	ErrInvalidRequest = errors.New("invalid transfer request")
)

// RemoteError is a failed remote store call. Code is the store's negative
// status code.
type RemoteError struct {
	Op   string
	Code int
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s failed (%d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s failed (%d): %s", e.Op, e.Code, remote.StatusText(e.Code))
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// LocalError is a failed local filesystem operation.
type LocalError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalError) Unwrap() error { return e.Err }

func (e *LocalError) Is(target error) bool { return target == ErrLocal }

func remoteErr(op string, err error) *RemoteError {
	code := remote.CodeOf(err)
	if code == 0 {
		code = remote.Classify(err)
	}
	return &RemoteError{Op: op, Code: code, Err: err}
}

func localErr(op, path string, err error) *LocalError {
	return &LocalError{Op: op, Path: path, Err: err}
}

// ErrorSink receives every error a transfer runs into, including cleanup
// failures that are not returned.
type ErrorSink func(err error)

// CodeOf returns the remote status code carried by err, or 0.
func CodeOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	return remote.CodeOf(err)
}
