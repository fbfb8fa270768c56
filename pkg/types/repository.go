package types

import "time"

// Repository is the domain-level CRUD over the diary entries collection.
// Returned entries are copies; mutating them never changes stored state.
type Repository interface {
	// Save assigns a new ID and audit timestamps, validates, prepends the
	// entry to the collection and persists it. ID, CreatedAt and UpdatedAt
	// on the input are ignored.
	Save(entry Entry) (Entry, error)

	// Update merges the patch into the entry with the given ID and bumps
	// UpdatedAt. Returns ErrNotFound if no such entry exists.
	Update(id string, patch EntryPatch) (Entry, error)

	// Delete removes the entry. Deleting a missing ID is a no-op.
	Delete(id string) error

	// GetByID returns the entry or ErrNotFound.
	GetByID(id string) (Entry, error)

	// GetAll returns the collection in persisted (insertion) order.
	GetAll() ([]Entry, error)

	// GetFiltered returns the entries matching filter, newest first.
	GetFiltered(filter Filter) ([]Entry, error)

	// GetForDate returns the entries of the local calendar day of date.
	GetForDate(date time.Time) ([]Entry, error)

	// GetNutritionStats aggregates nutrition over [start, end].
	GetNutritionStats(start, end time.Time) (NutritionStats, error)
}
