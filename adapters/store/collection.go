package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/albert-vybestein/neobank/ports"
)

// Collection names
const (
	ChallengesCollection  = "auth-challenges"
	SessionsCollection    = "auth-sessions"
	DeploymentsCollection = "safe-deployments"
)

// Collection is a typed view over one logical collection of a RecordStore.
//
// Update serializes read-modify-write cycles of this process only. Another
// process writing the same collection can still interleave and lose updates.
type Collection[T any] struct {
	store ports.RecordStore
	name  string
	mu    sync.Mutex
}

// NewCollection binds a typed collection to the store
func NewCollection[T any](store ports.RecordStore, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

// All returns every record. A missing or unreadable collection yields an empty slice.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	data, err := c.store.Read(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return decode[T](data), nil
}

// Replace writes records as the new collection content
func (c *Collection[T]) Replace(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, records)
}

// Append adds one record at the end of the collection
func (c *Collection[T]) Append(ctx context.Context, record T) error {
	return c.Update(ctx, func(records []T) ([]T, bool, error) {
		return append(records, record), true, nil
	})
}

// Update reads the collection, applies fn and writes the result back when fn
// reports a change. An error from fn aborts without writing.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.store.Read(ctx, c.name)
	if err != nil {
		return err
	}

	next, changed, err := fn(decode[T](data))
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return c.write(ctx, next)
}

func (c *Collection[T]) write(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.name, err)
	}
	return c.store.Write(ctx, c.name, data)
}

// decode treats corrupt content like an empty collection, matching a fresh install
func decode[T any](data []byte) []T {
	if len(data) == 0 {
		return []T{}
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return []T{}
	}
	return records
}
