package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/recordport/internal/domain"
)

// Defaults applied when an option is left at its zero value.
const (
	DefaultChunkSize    = 10000
	DefaultMaxErrorRows = 1000
)

// DedupPriority decides which of two colliding rows within the same chunk
// survives.
type DedupPriority int

const (
	// FirstWins keeps the row that was accepted earlier in the chunk.
	FirstWins DedupPriority = iota
	// LastWins replaces the earlier row with the later one.
	LastWins
)

func (p DedupPriority) String() string {
	if p == LastWins {
		return "last_wins"
	}
	return "first_wins"
}

// ParseDedupPriority converts a request/config value into a DedupPriority.
func ParseDedupPriority(value string) (DedupPriority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "first", "first_wins", "firstwins":
		return FirstWins, nil
	case "last", "last_wins", "lastwins":
		return LastWins, nil
	default:
		return FirstWins, fmt.Errorf("unknown dedup priority %q", value)
	}
}

// Options is the configuration surface of one import run.
type Options struct {
	// ChunkSize is the number of rows committed per transaction.
	ChunkSize int
	// MaxErrorRows caps how many row errors are reported back. Rows past the
	// cap are still excluded from import, only the detail is dropped.
	MaxErrorRows int
	// SkipExisting silently skips rows whose uniqueness key matches a stored
	// record instead of queuing them as updates.
	SkipExisting bool
	// DedupPriority resolves collisions between rows of the same chunk.
	DedupPriority DedupPriority
	// IncludeFields/ExcludeFields filter which schema fields are importable.
	IncludeFields []string
	ExcludeFields []string
	// UniqueKey overrides the uniqueness key inferred from the schema.
	UniqueKey []string
	// Encoding of the source file. Empty means UTF-8.
	Encoding string
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxErrorRows <= 0 {
		o.MaxErrorRows = DefaultMaxErrorRows
	}
	return o
}

// Hooks are the injected strategy functions the pipeline calls to populate
// fields it owns (audit fields and the like) that never come from the source
// file.
type Hooks struct {
	// InsertDefaults returns field values merged into every new record.
	InsertDefaults func(ctx context.Context) map[string]any
	// BeforeUpdate may touch a record queued for update, e.g. to stamp
	// updated_by.
	BeforeUpdate func(ctx context.Context, record *domain.Record)
}
