// Package docstore provides a small, subscribable key-value document store
// organized into named collections. Documents are opaque JSON; typed layers
// live above it.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Document is one stored record. Data is the raw JSON payload.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Store is the abstract document store contract. Writes to different keys
// carry no ordering or transactional guarantees; see the optional Mover and
// AtomicUpdater capabilities for the operations that need atomicity.
type Store interface {
	// Get returns the document at (collection, id), or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set fully overwrites the document at (collection, id), creating it
	// if absent.
	Set(ctx context.Context, collection, id string, data json.RawMessage) error

	// Update merges the given top-level fields into the document. A nil
	// field value deletes that key. Returns ErrNotFound if the document
	// does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Remove deletes the document. Removing an absent document returns
	// ErrNotFound.
	Remove(ctx context.Context, collection, id string) error

	// Push stores data under a freshly minted child key and returns it.
	Push(ctx context.Context, collection string, data json.RawMessage) (string, error)

	// List returns every document in the collection in creation order.
	List(ctx context.Context, collection string) ([]Document, error)

	// Clear removes every document in the collection.
	Clear(ctx context.Context, collection string) error

	// Subscribe registers fn to receive the full current contents of the
	// collection, once immediately and again after every change. Rapid
	// successive writes may coalesce into a single delivery. The returned
	// function cancels the subscription and is safe to call repeatedly.
	Subscribe(collection string, fn func([]Document)) func()
}

// Mover is an optional capability: move a document between collections under
// a new key in a single atomic step. Stores that support it eliminate the
// duplicated-or-lost window of a separate copy-then-delete.
type Mover interface {
	// Move reads (from, id), applies mutate to its payload, writes the
	// outcome into `to` under a freshly minted key, and deletes the
	// original, all in one transaction. Returns the new key.
	Move(ctx context.Context, from, id, to string, mutate func(json.RawMessage) (json.RawMessage, error)) (string, error)
}

// AtomicUpdater is an optional capability: transactional read-modify-write
// of a single document. fn receives the current payload and returns the
// replacement; returning an error aborts without writing.
type AtomicUpdater interface {
	UpdateFn(ctx context.Context, collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) error
}
