package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperchat/internal/embeddings"
	"paperchat/internal/faults"
)

// Qdrant is a minimal REST client to Qdrant assuming cosine distance.
// Tenant isolation is structural: every tenant maps to its own collection,
// created on first write.
type Qdrant struct {
	url        string
	apiKey     string
	collection string // collection name prefix
	dimension  int
	client     *http.Client

	mu    sync.Mutex
	ready map[string]struct{}
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", cfg.Dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "papers"
	}
	return &Qdrant{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
		ready:      make(map[string]struct{}),
	}, nil
}

var tenantSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func (q *Qdrant) collectionFor(tenant string) string {
	return q.collection + "__" + tenantSanitizer.ReplaceAllString(tenant, "_")
}

func (q *Qdrant) ensureCollection(ctx context.Context, tenant string) error {
	name := q.collectionFor(tenant)
	q.mu.Lock()
	_, ok := q.ready[name]
	q.mu.Unlock()
	if ok {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 for an existing collection with the same schema.
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body, nil); err != nil {
		return err
	}
	q.mu.Lock()
	q.ready[name] = struct{}{}
	q.mu.Unlock()
	return nil
}

// pointID derives a stable UUID from document id and chunk position so
// redelivered or re-run ingestion overwrites rather than appends.
func pointID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", documentID, index))).String()
}

func (q *Qdrant) Upsert(ctx context.Context, tenant string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, tenant); err != nil {
		return err
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     pointID(r.DocumentID, r.ChunkIndex),
			"vector": r.Vector,
			"payload": map[string]any{
				"document_id": r.DocumentID,
				"chunk_ord":   r.ChunkIndex,
				"text":        r.Text,
				"title":       r.Title,
				"authors":     r.Authors,
			},
		}
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collectionFor(tenant))
	return q.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (q *Qdrant) Query(ctx context.Context, tenant string, vector embeddings.Vector, k int, docIDs []string) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if len(docIDs) > 0 {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"any": docIDs}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collectionFor(tenant))
	if err := q.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := Match{Score: r.Score}
		if v, ok := r.Payload["document_id"].(string); ok {
			m.DocumentID = v
		}
		if v, ok := r.Payload["chunk_ord"].(float64); ok {
			m.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			m.Text = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			m.Title = v
		}
		if v, ok := r.Payload["authors"].(string); ok {
			m.Authors = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (q *Qdrant) DeleteDocument(ctx context.Context, tenant, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionFor(tenant))
	err := q.do(ctx, http.MethodPost, path, body, nil)
	// deleting from a namespace that was never written is a no-op
	if err != nil && strings.Contains(err.Error(), "404") {
		return nil
	}
	return err
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return faults.Provider("qdrant request failed", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return faults.Provider("qdrant request failed",
			fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncateBody(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return faults.Provider("qdrant response decode failed", err)
		}
	}
	return nil
}

func truncateBody(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
