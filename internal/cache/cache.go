package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cache stores recent answers so re-asked questions skip the
// embedding and generation round trips.
type Cache interface {
	// GetAnswer retrieves a cached answer by key. Returns nil on miss.
	GetAnswer(ctx context.Context, tenant, key string) (*Result, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, tenant, key string, result *Result, ttl time.Duration) error

	// InvalidateTenant drops every cached answer for a tenant. Called
	// whenever a tenant's library changes, since any cached answer may
	// have been grounded on stale content.
	InvalidateTenant(ctx context.Context, tenant string) error

	// Close closes the cache connection.
	Close() error
}

// Result is a cached answer payload.
type Result struct {
	Answer     string          `json:"answer"`
	Citations  json.RawMessage `json:"citations"`
	ChunksUsed int             `json:"chunks_used"`
}

// Key derives a deterministic cache key from the question and the
// retrieval scope. Scope order must not matter, so paper ids are
// sorted before hashing.
func Key(sessionID uuid.UUID, question string, scope []uuid.UUID) string {
	ids := make([]string, 0, len(scope))
	for _, id := range scope {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(sessionID.String()))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(question)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
