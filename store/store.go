// Package store defines the document-store client the adapter talks to,
// along with a Firestore-backed and an in-memory implementation.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an operation requires a document that
// does not exist.
var ErrNotFound = errors.New("document not found")

// Unsubscribe cancels a live subscription.
type Unsubscribe func()

// Client is the entry point of a document store.
type Client interface {
	Collection(name string) Collection
	// ServerTimestamp returns the sentinel value the store replaces with
	// its own clock when the document is written.
	ServerTimestamp() any
}

// Query is a (possibly filtered) view over a collection.
type Query interface {
	// Where narrows the query. Errors from an invalid operator surface on
	// Get or OnSnapshot.
	Where(field, op string, value any) Query
	Get(ctx context.Context) ([]DocumentSnapshot, error)
	// OnSnapshot delivers the current result set, then a fresh one after
	// every change, until the returned Unsubscribe is called. Snapshots
	// arrive one at a time and in change order. A snapshot already being
	// handed to onNext when Unsubscribe is called may still complete on
	// the Firestore backend; MemoryStore's Unsubscribe waits for it.
	OnSnapshot(onNext func([]DocumentSnapshot), onError func(error)) Unsubscribe
}

// Collection is a named set of documents.
type Collection interface {
	Query
	Doc(id string) DocumentRef
	Add(ctx context.Context, data map[string]any) (DocumentRef, error)
}

// DocumentRef addresses a single document.
type DocumentRef interface {
	ID() string
	Get(ctx context.Context) (DocumentSnapshot, error)
	// Update merges data into the document. Returns ErrNotFound if the
	// document does not exist.
	Update(ctx context.Context, data map[string]any) error
	Delete(ctx context.Context) error
}

// DocumentSnapshot is the state of a document at read time.
type DocumentSnapshot interface {
	Exists() bool
	ID() string
	Data() map[string]any
}
