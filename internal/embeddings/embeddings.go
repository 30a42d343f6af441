package embeddings

import "context"

// Vector is a fixed-dimension embedding.
type Vector []float32

// Embedder maps text to vectors. The same embedder must serve ingestion
// and query time; mixing embedding spaces breaks retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	// Dimension is the fixed output dimension.
	Dimension() int
}
