package ports

import "context"

// RecordStore persists whole collections of records by logical name.
// Implementations replace a collection atomically; there are no partial updates.
type RecordStore interface {
	// Read returns the raw collection, or nil when it was never written
	Read(ctx context.Context, collection string) ([]byte, error)

	// Write replaces the collection
	Write(ctx context.Context, collection string, data []byte) error
}
