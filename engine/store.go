/*
store.go - Persistence capability

PURPOSE:
  Defines the narrow key-value interface the engine needs from the host's
  storage layer, and a typed Collection wrapper on top of it. Records are
  opaque JSON payloads keyed by entity id inside a named collection.

KEY INTERFACES:
  Store:         GetAll / Put / Remove on raw records
  Collection[T]: Typed access (JSON encode/decode) to one collection

ORDERING CONTRACT:
  GetAll returns records in insertion order. Put on an existing id replaces
  the record in place and keeps its position. The "today" list and the
  ledger's per-day queries rely on this.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite-backed

SEE ALSO:
  - ledger.go: Dose ledger built on a Collection
  - tracker/tracker.go: Medication writes through a Collection
*/
package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names used by the engine.
const (
	CollectionMedications = "medications"
	CollectionDoses       = "doses"
)

// =============================================================================
// STORE - Interface for record persistence
// =============================================================================

// Record is one persisted entity.
type Record struct {
	ID   string
	Data []byte
}

// Store is the persistence capability supplied by the host.
type Store interface {
	// GetAll returns every record of a collection in insertion order.
	GetAll(ctx context.Context, collection string) ([]Record, error)

	// Put inserts a record, or replaces the record with the same id in place.
	Put(ctx context.Context, collection string, rec Record) error

	// Remove deletes a record. Removing a missing id is not an error.
	Remove(ctx context.Context, collection string, id string) error
}

// =============================================================================
// COLLECTION - Typed view of one collection
// =============================================================================

// Entity is anything stored in a Collection.
type Entity interface {
	EntityID() string
}

type Collection[T Entity] struct {
	store Store
	name  string
}

func NewCollection[T Entity](store Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

func (c *Collection[T]) Name() string { return c.name }

// All decodes every record. Failures are returned as *PersistenceError.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	recs, err := c.store.GetAll(ctx, c.name)
	if err != nil {
		return nil, &PersistenceError{Op: "get_all", Collection: c.name, Err: err}
	}

	items := make([]T, 0, len(recs))
	for _, rec := range recs {
		var item T
		if err := json.Unmarshal(rec.Data, &item); err != nil {
			return nil, &PersistenceError{
				Op:         "get_all",
				Collection: c.name,
				Err:        fmt.Errorf("decode record %s: %w", rec.ID, err),
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns the item with the given id, or ok=false.
func (c *Collection[T]) Get(ctx context.Context, id string) (item T, ok bool, err error) {
	items, err := c.All(ctx)
	if err != nil {
		return item, false, err
	}
	for _, it := range items {
		if it.EntityID() == id {
			return it, true, nil
		}
	}
	return item, false, nil
}

func (c *Collection[T]) Put(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return &PersistenceError{Op: "put", Collection: c.name, Err: err}
	}
	if err := c.store.Put(ctx, c.name, Record{ID: item.EntityID(), Data: data}); err != nil {
		return &PersistenceError{Op: "put", Collection: c.name, Err: err}
	}
	return nil
}

func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	if err := c.store.Remove(ctx, c.name, id); err != nil {
		return &PersistenceError{Op: "remove", Collection: c.name, Err: err}
	}
	return nil
}
