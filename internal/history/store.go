package history

import (
	"context"

	"github.com/uprightlabs/backend/internal/models"
)

// Store persists one record per finished session. Implementations keep
// records in append order; List and Recent return them oldest-first.
type Store interface {
	// Append writes one finished-session record.
	Append(ctx context.Context, rec models.SessionRecord) error
	// List returns every stored record, oldest first.
	List(ctx context.Context) ([]models.SessionRecord, error)
	// Recent returns the last limit records, oldest first.
	Recent(ctx context.Context, limit int) ([]models.SessionRecord, error)
	// Delete removes the record for sessionID, reporting whether one existed.
	Delete(ctx context.Context, sessionID string) (bool, error)
	// Clear removes every stored record.
	Clear(ctx context.Context) error
	// Aggregate summarizes all stored records. A row whose cell for a given
	// field is not numeric is excluded from that field's average but still
	// counts toward the session total.
	Aggregate(ctx context.Context) (models.StoreAggregate, error)
}
