package importer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rpattn/recordport/internal/domain"
)

// Candidate is a row that survived validation and is queued for commit.
// ExistingID is set when the row resolves to an update of a stored record.
type Candidate struct {
	Record     domain.Record
	ExistingID uuid.UUID
	RowNumber  int

	key string
}

// IsUpdate reports whether the candidate targets an existing record.
func (c Candidate) IsUpdate() bool {
	return c.ExistingID != uuid.Nil
}

// deduper collapses rows of a single chunk that share the same uniqueness key
// value. When the key is empty it is a pass-through and every appended
// candidate survives.
type deduper struct {
	key      []string
	priority DedupPriority

	candidates []Candidate
	index      map[string]int
}

func newDeduper(key []string, priority DedupPriority) *deduper {
	return &deduper{
		key:      key,
		priority: priority,
		index:    make(map[string]int),
	}
}

// Append adds a candidate, resolving collisions against candidates already in
// the chunk per the configured priority. It reports whether the candidate was
// kept.
func (d *deduper) Append(c Candidate) bool {
	if len(d.key) == 0 {
		d.candidates = append(d.candidates, c)
		return true
	}

	c.key = encodeKey(c.Record.Fields, d.key)
	pos, seen := d.index[c.key]
	if !seen {
		d.index[c.key] = len(d.candidates)
		d.candidates = append(d.candidates, c)
		return true
	}

	if d.priority == FirstWins {
		return false
	}

	// LastWins replaces in place so the chunk keeps its original ordering.
	// The replacement inherits an update target only when the earlier
	// candidate had one; two colliding new rows stay an insert.
	if prior := d.candidates[pos]; prior.IsUpdate() {
		c.ExistingID = prior.ExistingID
		c.Record.ID = prior.ExistingID
	}
	d.candidates[pos] = c
	return true
}

// Candidates returns the surviving candidates in chunk order.
func (d *deduper) Candidates() []Candidate {
	return d.candidates
}

func (d *deduper) reset() {
	d.candidates = d.candidates[:0]
	for k := range d.index {
		delete(d.index, k)
	}
}

// encodeKey renders the key field values as a canonical string so that two
// rows with equal keys always collide. JSON arrays compare order
// insensitively; a CSV cell like "[2,1]" and a stored "[1,2]" identify the
// same record.
func encodeKey(fields map[string]any, key []string) string {
	parts := make([]string, len(key))
	for i, name := range key {
		parts[i] = canonicalValue(fields[name])
	}
	encoded, err := json.Marshal(parts)
	if err != nil {
		// Field values are produced by coercion and are always encodable;
		// fall back to the verbose representation if not.
		return fmt.Sprintf("%v", parts)
	}
	return string(encoded)
}

func canonicalValue(value any) string {
	if list, ok := value.([]any); ok {
		items := make([]string, len(list))
		for i, item := range list {
			items[i] = canonicalValue(item)
		}
		sort.Strings(items)
		encoded, err := json.Marshal(items)
		if err == nil {
			return string(encoded)
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}
