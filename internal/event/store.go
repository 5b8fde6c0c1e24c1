package event

import (
	"github.com/google/uuid"
	"github.com/youmna-rabie/socket-relay/internal/types"
)

// Store keeps summaries of recently dispatched events. It is a bounded,
// process-local log for the admin endpoints, not durable storage.
type Store interface {
	// Save appends a record, evicting the oldest one when full.
	Save(rec types.Record) error

	// Get retrieves a record by event ID.
	Get(id uuid.UUID) (types.Record, error)

	// List returns up to limit records, newest first, skipping offset.
	List(limit, offset int) ([]types.Record, error)

	// Count returns the number of records currently held.
	Count() int

	// StatusCounts returns the number of held records per status.
	StatusCounts() map[types.RecordStatus]int
}
