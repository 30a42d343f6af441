// Package vectorstore is the tenant-namespaced nearest-neighbor index over
// chunk embeddings. Every implementation keys vectors by
// (tenant, document, chunk position) so re-ingestion overwrites instead of
// appending, and scopes every read to one tenant namespace.
package vectorstore

import (
	"context"

	"paperchat/internal/embeddings"
)

// Record is one indexed chunk with its retrieval metadata.
type Record struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Title      string
	Authors    string
	Vector     embeddings.Vector
}

// Match is one query result, ranked by cosine similarity in [-1,1].
// Ties are broken by ascending document id, then chunk index.
type Match struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Title      string
	Authors    string
	Score      float32
}

// Index stores and searches vectors inside one tenant namespace per call.
type Index interface {
	// Upsert writes records keyed by (tenant, document, chunk index).
	Upsert(ctx context.Context, tenant string, records []Record) error
	// Query returns up to k nearest matches. A non-empty docIDs slice
	// restricts results to those documents; the tenant namespace always
	// applies.
	Query(ctx context.Context, tenant string, vector embeddings.Vector, k int, docIDs []string) ([]Match, error)
	// DeleteDocument removes every vector for the document. Idempotent.
	DeleteDocument(ctx context.Context, tenant, documentID string) error
}
