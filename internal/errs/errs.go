// Package errs classifies storage errors into the codes callers dispatch on.
//
// Primitives classify at the point of detection: every error that leaves the
// underlying, forest, drive or vfs packages is either an *Error or wraps one.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Code is the category of a storage error.
type Code int

const (
	// OK is the zero Code; it never appears on a returned error.
	OK Code = iota

	// ENOENT indicates a missing path component, drive, or node.
	ENOENT

	// ENOTDIR indicates a directory was expected but a file was found.
	ENOTDIR

	// EEXIST indicates the target name is already taken.
	EEXIST

	// ECONFLICT tags an EEXIST whose existing object has the same kind as
	// the one being created, so a merge/replace style policy could apply.
	ECONFLICT

	// EINCONSISTENCE indicates the cached identity diverged from the real
	// entry. The operation was aborted; callers must re-read and retry.
	EINCONSISTENCE

	// ECOMMITFAIL indicates a drive-list mutation lost the race.
	ECOMMITFAIL

	// EINVAL indicates a caller-supplied uuid, name or path is not valid
	// for the drive or parent it was given with.
	EINVAL

	// EDIRTY tags an error caused by the cache changing while an operation
	// was in flight.
	EDIRTY
)

var codeNames = [...]string{
	OK:             "OK",
	ENOENT:         "ENOENT",
	ENOTDIR:        "ENOTDIR",
	EEXIST:         "EEXIST",
	ECONFLICT:      "ECONFLICT",
	EINCONSISTENCE: "EINCONSISTENCE",
	ECOMMITFAIL:    "ECOMMITFAIL",
	EINVAL:         "EINVAL",
	EDIRTY:         "EDIRTY",
}

func (c Code) String() string {
	if int(c) >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "Unknown"
}

// Error is a classified storage error.
type Error struct {
	Err   error
	Op    string
	Path  string
	Code  Code
	XCode Code
}

// New creates an error with the given code.
func New(code Code, op, path, msg string) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: errors.New(msg)}
}

// Wrap classifies err with code. A nil err yields nil.
func Wrap(code Code, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.XCode != OK {
		msg += "+" + e.XCode.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithX returns a copy of e tagged with the secondary code x.
func (e *Error) WithX(x Code) *Error {
	c := *e
	c.XCode = x
	return &c
}

// Status returns the HTTP-class status associated with the error code.
func (e *Error) Status() int {
	switch e.Code {
	case ENOENT:
		return 404
	case ENOTDIR, EEXIST:
		return 403
	case EINVAL:
		return 400
	case ECOMMITFAIL:
		return 409
	case EINCONSISTENCE:
		return 503
	default:
		return 500
	}
}

// Is reports whether err carries code as its primary or secondary code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code || e.XCode == code {
			return true
		}
		err = e.Err
	}
	return false
}

// CodeOf returns the primary code of err, or OK if err is unclassified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return OK
}

// XCodeOf returns the secondary code of err, or OK.
func XCodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.XCode
	}
	return OK
}

// Status returns the HTTP-class status for err; unclassified errors are 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return 500
}

// FromOS classifies a raw filesystem error. Errors that do not map to a
// storage code are returned wrapped but unchanged in meaning.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ELOOP):
		return Wrap(ENOENT, op, path, err)
	case errors.Is(err, syscall.ENOTDIR):
		return Wrap(ENOTDIR, op, path, err)
	case errors.Is(err, fs.ErrExist), errors.Is(err, syscall.ENOTEMPTY):
		return Wrap(EEXIST, op, path, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
