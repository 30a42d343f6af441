package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"paperchat/internal/embeddings"
)

// Memory is a brute-force cosine index. Each tenant gets its own map, so a
// query can never observe another tenant's vectors. Used in tests and as
// VECTOR_PROVIDER=memory for local runs.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]map[string]Record // tenant -> "doc:index" -> record
}

func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, tenant string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.tenants[tenant]
	if ns == nil {
		ns = make(map[string]Record)
		m.tenants[tenant] = ns
	}
	for _, r := range records {
		ns[recordKey(r.DocumentID, r.ChunkIndex)] = r
	}
	return nil
}

func (m *Memory) Query(_ context.Context, tenant string, vector embeddings.Vector, k int, docIDs []string) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	var filter map[string]struct{}
	if len(docIDs) > 0 {
		filter = make(map[string]struct{}, len(docIDs))
		for _, id := range docIDs {
			filter[id] = struct{}{}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []Match
	for _, r := range m.tenants[tenant] {
		if filter != nil {
			if _, ok := filter[r.DocumentID]; !ok {
				continue
			}
		}
		matches = append(matches, Match{
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Title:      r.Title,
			Authors:    r.Authors,
			Score:      cosine(r.Vector, vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) DeleteDocument(_ context.Context, tenant, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.tenants[tenant] {
		if r.DocumentID == documentID {
			delete(m.tenants[tenant], key)
		}
	}
	return nil
}

// Count reports vectors stored for one document, used by ingestion tests.
func (m *Memory) Count(tenant, documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.tenants[tenant] {
		if r.DocumentID == documentID {
			n++
		}
	}
	return n
}

func recordKey(docID string, index int) string {
	return fmt.Sprintf("%s:%d", docID, index)
}

func cosine(a, b embeddings.Vector) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
