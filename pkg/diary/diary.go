// Package diary provides the public API for the food diary backend. It
// exposes the factory while keeping the implementation internal.
package diary

import (
	"github.com/mesh-intelligence/fooddiary/internal/diary"
)

// Version is the release version of the diary module.
const Version = "0.1.0"

// Diary is the attachable food diary backend.
type Diary = diary.Diary

// Option configures a Diary.
type Option = diary.Option

// WithLogger and WithClock configure the backend.
var (
	WithLogger = diary.WithLogger
	WithClock  = diary.WithClock
)

// New creates a detached Diary. Call Attach with a Config to open storage.
//
// Example:
//
//	d := diary.New()
//	err := d.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".fooddiary",
//	})
//	defer d.Detach()
func New(opts ...Option) *Diary {
	return diary.New(opts...)
}
