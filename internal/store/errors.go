// Package store is the single source of truth for "have we already captured
// this (posting, search, profile) combination".
package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable is matched by every Error. A caller seeing it must stop:
// continuing without the store would either re-process everything or drop
// everything.
var ErrUnavailable = errors.New("existence store unavailable")

// Error wraps a storage failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *Error) Is(target error) bool { return target == ErrUnavailable }

// InsertResult is the outcome of InsertIfAbsent. AlreadyExists is an ordinary
// result, not an error.
type InsertResult int

const (
	Inserted InsertResult = iota + 1
	AlreadyExists
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "INSERTED"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	default:
		return fmt.Sprintf("InsertResult(%d)", int(r))
	}
}
