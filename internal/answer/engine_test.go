package answer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperchat/internal/cache"
	"paperchat/internal/embeddings"
	"paperchat/internal/faults"
	"paperchat/internal/llm"
	"paperchat/internal/retry"
	"paperchat/internal/store"
	"paperchat/internal/vectorstore"
)

const tenant = "acme"

type fixture struct {
	engine   *Engine
	store    *store.MockStore
	index    *vectorstore.Memory
	embedder *embeddings.MockEmbedder
	llm      *llm.MockClient
	cache    *cache.MockCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    new(store.MockStore),
		index:    vectorstore.NewMemory(),
		embedder: new(embeddings.MockEmbedder),
		llm:      new(llm.MockClient),
		cache:    new(cache.MockCache),
	}
	f.engine = &Engine{
		Store:    f.store,
		Index:    f.index,
		Embedder: f.embedder,
		LLM:      f.llm,
		Cache:    f.cache,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		TopK:     5,
		History:  6,
		CacheTTL: time.Minute,
		Retry:    retry.Policy{Attempts: 2, Base: time.Millisecond},
	}
	return f
}

func (f *fixture) expectTranscript() {
	f.store.On("AppendTurn", mock.Anything, tenant, mock.Anything).Return(nil)
	f.store.On("TouchSession", mock.Anything, tenant, mock.Anything).Return(nil)
}

func completedDoc(id uuid.UUID, title string) store.Document {
	return store.Document{TenantID: tenant, ID: id, Title: title, Status: store.StatusCompleted}
}

func seedChunks(t *testing.T, index *vectorstore.Memory, docID uuid.UUID, title string, vectors ...embeddings.Vector) {
	t.Helper()
	records := make([]vectorstore.Record, 0, len(vectors))
	for i, v := range vectors {
		records = append(records, vectorstore.Record{
			DocumentID: docID.String(),
			ChunkIndex: i,
			Text:       "chunk text",
			Title:      title,
			Vector:     v,
		})
	}
	require.NoError(t, index.Upsert(context.Background(), tenant, records))
}

func TestAnswer_EmptyScopeShortCircuits(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	pendingID := uuid.New()

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{pendingID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, pendingID).Return(store.Document{
		TenantID: tenant, ID: pendingID, Status: store.StatusProcessing,
	}, nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	assert.Equal(t, emptyScopeAnswer, res.Answer)
	assert.Empty(t, res.Citations)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "GetAnswer", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_ScopeExcludesOtherPapers(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	inScope := uuid.New()
	outOfScope := uuid.New()

	// The out-of-scope paper has a perfectly matching vector; the scope
	// filter must keep it out anyway.
	seedChunks(t, f.index, inScope, "In Scope", embeddings.Vector{0.9, 0.1, 0})
	seedChunks(t, f.index, outOfScope, "Out of Scope", embeddings.Vector{1, 0, 0})

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{inScope},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, inScope).Return(completedDoc(inScope, "In Scope"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.store.On("ListTurns", mock.Anything, tenant, sessionID, 6).Return(nil, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("grounded answer [Source 1]", nil)
	f.cache.On("SetAnswer", mock.Anything, tenant, mock.Anything, mock.Anything, time.Minute).Return(nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	require.Len(t, res.Citations, 1)
	assert.Equal(t, inScope.String(), res.Citations[0].DocumentID)
}

func TestAnswer_NoMatchesSaysInsufficientContext(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	// Paper is completed but nothing is indexed for it.
	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "T"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	assert.Equal(t, noContextAnswer, res.Answer)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_CitationsDedupedPerPaper(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	seedChunks(t, f.index, docID, "Paper",
		embeddings.Vector{1, 0, 0},
		embeddings.Vector{0.8, 0.2, 0},
		embeddings.Vector{0.6, 0.4, 0})

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "Paper"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.store.On("ListTurns", mock.Anything, tenant, sessionID, 6).Return(nil, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)
	f.cache.On("SetAnswer", mock.Anything, tenant, mock.Anything, mock.Anything, time.Minute).Return(nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	assert.Equal(t, 3, res.ChunksUsed)
	require.Len(t, res.Citations, 1)
	// Best chunk score wins.
	assert.InDelta(t, 1.0, float64(res.Citations[0].RelevanceScore), 1e-4)
}

func TestAnswer_TranscriptRecordsBothTurns(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	seedChunks(t, f.index, docID, "Paper", embeddings.Vector{1, 0, 0})

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "Paper"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.store.On("ListTurns", mock.Anything, tenant, sessionID, 6).Return(nil, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("the answer", nil)
	f.cache.On("SetAnswer", mock.Anything, tenant, mock.Anything, mock.Anything, time.Minute).Return(nil)

	var turns []store.ChatTurn
	f.store.On("AppendTurn", mock.Anything, tenant, mock.MatchedBy(func(turn store.ChatTurn) bool {
		turns = append(turns, turn)
		return true
	})).Return(nil)
	f.store.On("TouchSession", mock.Anything, tenant, sessionID).Return(nil)

	_, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "what is the method?", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "the answer", turns[1].Content)
	require.Len(t, turns[1].Sources, 1)
	// ksuid ids sort by creation time, so the user turn precedes the answer.
	assert.Less(t, turns[0].TurnID, turns[1].TurnID)
}

func TestAnswer_GenerationFailureIsAnAnswer(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	seedChunks(t, f.index, docID, "Paper", embeddings.Vector{1, 0, 0})

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "Paper"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.store.On("ListTurns", mock.Anything, tenant, sessionID, 6).Return(nil, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", faults.Provider("model unavailable", assert.AnError))
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	assert.Equal(t, generationFailed, res.Answer)
	// Provider failures get the full retry budget before falling back.
	f.llm.AssertNumberOfCalls(t, "Chat", 2)
	f.cache.AssertNotCalled(t, "SetAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_CacheHitSkipsProviders(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "Paper"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(&cache.Result{
		Answer:     "cached answer",
		Citations:  []byte(`[{"document_id":"` + docID.String() + `","title":"Paper","relevance_score":0.9}]`),
		ChunksUsed: 2,
	}, nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", true)
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Equal(t, "cached answer", res.Answer)
	require.Len(t, res.Citations, 1)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_EmptyQuestionRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Answer(context.Background(), tenant, uuid.New(), "   ", true)
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindInput))
}

func TestAnswer_HistoryExcludedOnRequest(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()
	docID := uuid.New()

	seedChunks(t, f.index, docID, "Paper", embeddings.Vector{1, 0, 0})

	f.store.On("GetSession", mock.Anything, tenant, sessionID).Return(store.Session{
		TenantID: tenant, ID: sessionID, PaperIDs: []uuid.UUID{docID},
	}, nil)
	f.store.On("GetDocument", mock.Anything, tenant, docID).Return(completedDoc(docID, "Paper"), nil)
	f.cache.On("GetAnswer", mock.Anything, tenant, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("grounded answer", nil)
	f.cache.On("SetAnswer", mock.Anything, tenant, mock.Anything, mock.Anything, time.Minute).Return(nil)
	f.expectTranscript()

	res, err := f.engine.Answer(context.Background(), tenant, sessionID, "what is the method?", false)
	require.NoError(t, err)

	assert.Equal(t, "grounded answer", res.Answer)
	f.store.AssertNotCalled(t, "ListTurns", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
