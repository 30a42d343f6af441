// Package blob stores the raw uploaded paper bytes until the ingestion
// pipeline picks them up.
package blob

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// Store holds uploaded file content keyed by tenant and document.
type Store interface {
	Put(ctx context.Context, tenant string, docID uuid.UUID, filename string, content []byte) error
	// Get returns the original filename and content, or ErrNotFound.
	Get(ctx context.Context, tenant string, docID uuid.UUID) (string, []byte, error)
	// Delete is idempotent.
	Delete(ctx context.Context, tenant string, docID uuid.UUID) error
}
