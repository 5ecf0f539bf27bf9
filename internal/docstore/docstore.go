package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the given path.
var ErrNotFound = errors.New("document not found")

// Doc is a single stored document: an id within its collection plus a free-form
// JSON payload.
type Doc struct {
	ID   string
	Data map[string]any
}

// BatchDoc addresses one document in a batched write.
type BatchDoc struct {
	Collection string
	ID         string
	Data       map[string]any
}

// Store is a key-path addressed document store. Collections are slash-separated
// paths; documents are schemaless JSON objects addressed by id.
type Store interface {
	// Get returns the document at collection/id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Query returns up to limit documents whose fields equal every filter value.
	// limit <= 0 means no limit.
	Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Doc, error)
	// Put creates or replaces the document at collection/id.
	Put(ctx context.Context, collection, id string, data map[string]any) error
	// Add inserts a document with a generated id and returns the id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// AddUnique inserts a document only if no document in the collection already
	// holds uniqueKey. It reports whether the insert happened; false with a nil
	// error means the key was already taken. The check and the insert are a
	// single atomic operation.
	AddUnique(ctx context.Context, collection, uniqueKey string, data map[string]any) (string, bool, error)
	// Delete removes the document at collection/id. Deleting a missing document
	// is not an error.
	Delete(ctx context.Context, collection, id string) error
	// BatchSet writes all documents in one batch.
	BatchSet(ctx context.Context, docs []BatchDoc) error
}
