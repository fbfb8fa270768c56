package types

import (
	"errors"
	"fmt"
	"strings"
)

// Repository errors.
var (
	ErrNotFound          = errors.New("entry not found")
	ErrInvalidID         = errors.New("invalid entry ID")
	ErrInvalidData       = errors.New("invalid entry data")
	ErrInvalidMealType   = errors.New("invalid meal type")
	ErrInvalidRating     = errors.New("rating out of range")
	ErrInvalidSortMethod = errors.New("invalid sort method")
)

// Storage and computation errors. ErrDecode never leaves the storage layer;
// it is recovered there by treating the value as missing.
var (
	ErrPersistence = errors.New("persistence failure")
	ErrDecode      = errors.New("stored value could not be decoded")
	ErrCompute     = errors.New("computation failed")
	ErrStaleResult = errors.New("result superseded by a newer request")
)

// PersistenceError reports an engine I/O failure. It matches ErrPersistence
// with errors.Is and unwraps to the engine error.
type PersistenceError struct {
	Op   string   // get, set, remove, clear, keys
	Keys []string // Keys involved, when known.
	Err  error
}

func (e *PersistenceError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s [%s]: %v", e.Op, strings.Join(e.Keys, ", "), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ComputeError reports a failed or panicking cache computation.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %q: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

func (e *ComputeError) Is(target error) bool { return target == ErrCompute }
