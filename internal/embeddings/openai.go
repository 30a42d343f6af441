package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"paperchat/internal/faults"
)

const defaultEmbeddingTimeout = 30 * time.Second

// OpenAIEmbedder calls OpenAI's embeddings API.
type OpenAIEmbedder struct {
	model     openai.EmbeddingModel
	dimension int
	client    *openai.Client
}

// NewOpenAIEmbedder creates a new OpenAI embedder with a fixed output dimension.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel, dimension int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	if dimension <= 0 {
		dimension = 1024
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{
		model:     model,
		dimension: dimension,
		client:    &cli,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, faults.Input("no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, faults.Input(fmt.Sprintf("empty text at position %d", i))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultEmbeddingTimeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(reqCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      e.model,
		Dimensions: openai.Int(int64(e.dimension)),
	})
	if err != nil {
		return nil, faults.Provider("openai embeddings call failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, faults.Provider("openai embeddings response incomplete",
			fmt.Errorf("got %d vectors for %d inputs", len(resp.Data), len(texts)))
	}

	out := make([]Vector, len(resp.Data))
	for i, d := range resp.Data {
		vec := make(Vector, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		if len(vec) != e.dimension {
			return nil, faults.Provider("openai embeddings dimension mismatch",
				fmt.Errorf("got %d, want %d", len(vec), e.dimension))
		}
		out[i] = vec
	}
	return out, nil
}
