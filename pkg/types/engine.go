package types

import "errors"

// Engine is the durable on-disk key/value engine. Values are opaque bytes;
// encoding belongs to the KeyValueStore above it. Batch methods apply all
// keys in one round trip.
type Engine interface {
	// Get returns the value for key, or nil with a nil error when the key
	// does not exist.
	Get(key string) ([]byte, error)

	// GetMulti returns the values of the keys that exist. Missing keys are
	// absent from the result.
	GetMulti(keys []string) (map[string][]byte, error)

	// PutMulti writes every key/value pair atomically.
	PutMulti(values map[string][]byte) error

	// DeleteMulti removes the keys. Missing keys are ignored.
	DeleteMulti(keys []string) error

	// Clear removes every key.
	Clear() error

	// Keys lists every key in the engine.
	Keys() ([]string, error)

	// Close releases the engine. Further calls fail.
	Close() error
}

// Diary lifecycle errors.
var (
	ErrDetached        = errors.New("diary is detached")
	ErrAlreadyAttached = errors.New("diary is already attached")
	ErrEngineClosed    = errors.New("engine is closed")
)
