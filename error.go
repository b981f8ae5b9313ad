package packdb

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the stores.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	LockAcquisitionFailure
	FileIOError
	SerializationError
	UniqueIndexViolation
	RollbackPoisoned
)

func (c ErrorCode) String() string {
	switch c {
	case LockAcquisitionFailure:
		return "lock acquisition failure"
	case FileIOError:
		return "file I/O error"
	case SerializationError:
		return "serialization error"
	case UniqueIndexViolation:
		return "unique index violation"
	case RollbackPoisoned:
		return "rollback poisoned"
	}
	return "unknown"
}

// ErrNotStaged is returned when committing a filename that has no staged stream.
var ErrNotStaged = errors.New("no staged stream")

// PackDB custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.UserData == nil {
		return fmt.Sprintf("%v: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%v: %v, user data: %v", e.Code, e.Err, e.UserData)
}

func (e Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err, or any error in its tree, is an Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case nil:
		return false
	case Error:
		return e.Code == code || HasCode(e.Err, code)
	case *Error:
		return e != nil && (e.Code == code || HasCode(e.Err, code))
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return HasCode(e.Unwrap(), code)
	}
	return false
}
