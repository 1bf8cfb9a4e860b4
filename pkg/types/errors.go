// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies run errors. The CLI decides exit codes from the kind.
type ErrorKind string

const (
	KindManifestInvalid   ErrorKind = "manifest invalid"
	KindInputPathInvalid  ErrorKind = "input path invalid"
	KindOutputPathInvalid ErrorKind = "output path invalid"
	KindFetchFailed       ErrorKind = "fetch failed"
	KindResolutionFailed  ErrorKind = "resolution failed"
	KindTransferFailed    ErrorKind = "transfer failed"
)

// Error is a typed run error. Op names the operation or subject that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Errorf builds an *Error whose cause is formatted like fmt.Errorf.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error ends the run. Only per-item transfer
// failures are recoverable.
func (e *Error) Fatal() bool {
	return e.Kind != KindTransferFailed
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsFatal reports whether err should end the run. Errors that are not
// *Error values are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return true
}
