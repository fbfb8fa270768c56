package repository

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/jsonl"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// ImportResult summarizes an Import.
type ImportResult struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"` // malformed lines and invalid entries
}

// Export writes the collection to path as JSONL, one entry per line in
// insertion order. It returns the number of entries written.
func (r *Repository) Export(path string) (int, error) {
	entries, err := r.GetAll()
	if err != nil {
		return 0, err
	}
	records, err := jsonl.Marshal(entries)
	if err != nil {
		return 0, err
	}
	if err := jsonl.WriteFile(path, records); err != nil {
		return 0, fmt.Errorf("exporting entries: %w", err)
	}
	return len(entries), nil
}

// Import reads a JSONL file written by Export. Entries keep their IDs. An
// entry whose ID is already present replaces the stored one in place, and
// new entries are prepended in file order. Lines that do not parse and
// entries that fail validation are skipped.
func (r *Repository) Import(path string) (ImportResult, error) {
	records, skipped, err := jsonl.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("importing entries: %w", err)
	}
	decoded, bad := jsonl.Unmarshal[types.Entry](records)
	res := ImportResult{Skipped: skipped + bad}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return ImportResult{}, err
	}

	now := r.clock.Now()
	next := make([]types.Entry, len(r.entries))
	copy(next, r.entries)
	pos := make(map[string]int, len(r.index))
	for id, i := range r.index {
		pos[id] = i
	}

	var added []types.Entry
	for _, e := range decoded {
		if e.ID == "" || e.Validate() != nil {
			r.log.Debug("skipping invalid entry", zap.String("id", e.ID))
			res.Skipped++
			continue
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = e.CreatedAt
		}
		if i, ok := pos[e.ID]; ok {
			if i >= 0 {
				next[i] = e
			} else {
				added[-i-1] = e
			}
			res.Replaced++
			continue
		}
		added = append(added, e)
		pos[e.ID] = -len(added)
		res.Added++
	}

	if res.Added == 0 && res.Replaced == 0 {
		return res, nil
	}
	// New entries go on top in file order, so an exported file imports
	// back into the same order.
	merged := make([]types.Entry, 0, len(added)+len(next))
	merged = append(merged, added...)
	merged = append(merged, next...)
	if err := r.commitLocked("import", merged, r.writer.WriteImmediate); err != nil {
		return ImportResult{}, err
	}
	r.log.Info("imported entries",
		zap.Int("added", res.Added), zap.Int("replaced", res.Replaced), zap.Int("skipped", res.Skipped))
	return res, nil
}
