// Package docstore defines the document-store contract the hub is built on
// and an in-process implementation of it.
//
// A Store offers point reads, point-in-time queries, single-document writes,
// all-or-nothing batches, and live subscriptions. Live subscriptions deliver
// their emissions in order on a goroutine owned by the store, never on the
// subscriber's goroutine. The first emission is always the current state: a
// nil Doc for a missing document, an empty slice for an empty result.
//
// Unsubscribe is idempotent and does not wait. Once it returns no new
// emission starts, but one already running may still finish, so consumers
// that replace subscriptions must ignore callbacks from retired ones.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Doc is a schemaless document. The "_id" key carries the document ID on reads.
type Doc map[string]any

// ID returns the document's "_id" as a string.
func (d Doc) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Unsubscribe disposes a live subscription.
type Unsubscribe func()

// Filter is an equality predicate on one top-level field.
type Filter struct {
	Field string
	Value any
}

// Where is shorthand for a Filter literal.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Order sorts query results by one field. The zero Order leaves results in
// document-ID order.
type Order struct {
	Field string
	Desc  bool
}

// OpKind identifies a batched write.
type OpKind int

const (
	OpSet    OpKind = iota // replace (or create) the whole document
	OpUpdate               // merge fields into an existing document
	OpDelete               // remove the document; absent is fine
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Op is one write inside a Batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       Doc
}

// Errors reported by stores.
var (
	// ErrNotFound means the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAtomicUnsupported means the backend cannot commit a multi-document
	// batch atomically, so the batch was not attempted.
	ErrAtomicUnsupported = errors.New("docstore: atomic batch not supported by backend")
	// ErrInvalidOp means an operation was malformed (missing collection or ID).
	ErrInvalidOp = errors.New("docstore: invalid operation")
)

// Store is the document-store contract.
type Store interface {
	// Get reads one document. Missing documents return ErrNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Query returns the documents matching every filter, sorted by order.
	Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Doc, error)
	// Write stores a whole document and returns its ID. An empty id asks the
	// store to assign one; an existing document with the same id is replaced.
	Write(ctx context.Context, collection, id string, data Doc) (string, error)
	// Update merges fields into an existing document. Missing documents
	// return ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Doc) error
	// Delete removes a document. Deleting a missing document succeeds.
	Delete(ctx context.Context, collection, id string) error
	// Batch commits every op or none of them.
	Batch(ctx context.Context, ops []Op) error

	// SubscribeDocument streams one document (nil when absent).
	SubscribeDocument(collection, id string, onChange func(Doc), onError func(error)) Unsubscribe
	// SubscribeQuery streams the full ordered result of a query on every change.
	SubscribeQuery(collection string, filters []Filter, order Order, onChange func([]Doc), onError func(error)) Unsubscribe
}
