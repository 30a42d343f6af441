package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperchat/internal/app"
	"paperchat/internal/blob"
	"paperchat/internal/cache"
	"paperchat/internal/config"
	"paperchat/internal/httputil"
	"paperchat/internal/queue"
	"paperchat/internal/store"
	"paperchat/internal/vectorstore"
)

const testTenant = "acme"

type testDeps struct {
	deps  app.Deps
	store *store.MockStore
	blobs *blob.MockStore
	index *vectorstore.Memory
	queue *queue.MockQueue
	cache *cache.MockCache
}

func newTestDeps() *testDeps {
	td := &testDeps{
		store: new(store.MockStore),
		blobs: new(blob.MockStore),
		index: vectorstore.NewMemory(),
		queue: new(queue.MockQueue),
		cache: new(cache.MockCache),
	}
	td.deps = app.Deps{
		Config: config.Config{MaxUploadSize: 1 << 20, TopK: 5, HistoryTurns: 6},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  td.store,
		Blobs:  td.blobs,
		Index:  td.index,
		Cache:  td.cache,
		Queue:  td.queue,
	}
	return td
}

func newTestRouter(td *testDeps) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(httputil.RequireTenant)
		r.Post("/papers/upload", uploadHandler(td.deps))
		r.Post("/papers/import", importHandler(td.deps))
		r.Get("/papers/{id}", paperStatusHandler(td.deps))
		r.Delete("/papers/{id}", deletePaperHandler(td.deps))
		r.Post("/sessions/{id}/papers", addSessionPaperHandler(td.deps))
		r.Get("/sessions/{id}/history", historyHandler(td.deps))
		r.Post("/sessions/{id}/chat", chatProxyHandler(td.deps))
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httputil.TenantHeader, testTenant)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMissingTenantHeaderRejected(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)

	req := httptest.NewRequest(http.MethodGet, "/api/papers/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	td.store.AssertNotCalled(t, "GetDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "paper.docx")
	require.NoError(t, err)
	_, err = fw.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/papers/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(httputil.TenantHeader, testTenant)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStoresBlobAndEnqueues(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	docID := uuid.New()

	td.store.On("CreateDocument", mock.Anything, mock.MatchedBy(func(d store.Document) bool {
		return d.TenantID == testTenant && d.Source == store.SourceUpload && d.Title == "My Paper"
	})).Return(store.Document{TenantID: testTenant, ID: docID, Title: "My Paper", Status: store.StatusPending}, nil)
	td.blobs.On("Put", mock.Anything, testTenant, docID, "paper.txt", []byte("some paper text")).Return(nil)
	td.queue.On("Enqueue", mock.Anything, mock.MatchedBy(queue.OfType(queue.TaskTypeIngest))).Return(nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "My Paper"))
	fw, err := mw.CreateFormFile("file", "paper.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("some paper text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/papers/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(httputil.TenantHeader, testTenant)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp paperResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, docID, resp.ID)
	assert.Equal(t, "pending", resp.Status)
	td.store.AssertExpectations(t)
	td.blobs.AssertExpectations(t)
	td.queue.AssertExpectations(t)
}

func TestImportRequiresAbstract(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)

	rec := doJSON(t, r, http.MethodPost, "/api/papers/import", `{"title":"T"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	td.store.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything)
}

func TestImportEnqueuesIngest(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	docID := uuid.New()

	td.store.On("CreateDocument", mock.Anything, mock.MatchedBy(func(d store.Document) bool {
		return d.Source == store.SourceImport && d.Abstract != ""
	})).Return(store.Document{TenantID: testTenant, ID: docID, Status: store.StatusPending}, nil)
	td.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	rec := doJSON(t, r, http.MethodPost, "/api/papers/import",
		`{"title":"T","authors":"Doe","abstract":"We study retrieval."}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	td.queue.AssertExpectations(t)
}

func TestPaperStatusNotFound(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	docID := uuid.New()

	td.store.On("GetDocument", mock.Anything, testTenant, docID).
		Return(store.Document{}, store.ErrDocumentNotFound)

	rec := doJSON(t, r, http.MethodGet, "/api/papers/"+docID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePaperSweepsEverything(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	docID := uuid.New()

	require.NoError(t, td.index.Upsert(context.Background(), testTenant, []vectorstore.Record{
		{DocumentID: docID.String(), ChunkIndex: 0, Vector: []float32{1, 0}},
	}))

	td.store.On("DeleteDocument", mock.Anything, testTenant, docID).Return(nil)
	td.blobs.On("Delete", mock.Anything, testTenant, docID).Return(nil)
	td.cache.On("InvalidateTenant", mock.Anything, testTenant).Return(nil)

	rec := doJSON(t, r, http.MethodDelete, "/api/papers/"+docID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, td.index.Count(testTenant, docID.String()))
	td.store.AssertExpectations(t)
	td.blobs.AssertExpectations(t)
	td.cache.AssertExpectations(t)
}

func TestAddSessionPaperRejectsUnknownPaper(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	sessionID := uuid.New()
	paperID := uuid.New()

	td.store.On("GetDocument", mock.Anything, testTenant, paperID).
		Return(store.Document{}, store.ErrDocumentNotFound)

	rec := doJSON(t, r, http.MethodPost, "/api/sessions/"+sessionID.String()+"/papers",
		`{"paper_id":"`+paperID.String()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	td.store.AssertNotCalled(t, "AddSessionPaper", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryReturnsTurnsInOrder(t *testing.T) {
	td := newTestDeps()
	r := newTestRouter(td)
	sessionID := uuid.New()

	td.store.On("GetSession", mock.Anything, testTenant, sessionID).
		Return(store.Session{TenantID: testTenant, ID: sessionID}, nil)
	td.store.On("ListTurns", mock.Anything, testTenant, sessionID, 50).Return([]store.ChatTurn{
		{SessionID: sessionID, TurnID: "a", Role: "user", Content: "q"},
		{SessionID: sessionID, TurnID: "b", Role: "assistant", Content: "a"},
	}, nil)

	rec := doJSON(t, r, http.MethodGet, "/api/sessions/"+sessionID.String()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var turns []historyTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestChatProxyForwardsTenant(t *testing.T) {
	td := newTestDeps()
	sessionID := uuid.New()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testTenant, r.Header.Get(httputil.TenantHeader))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, sessionID.String(), body["session_id"])
		assert.Equal(t, "what is the method?", body["question"])

		httputil.WriteJSON(w, http.StatusOK, map[string]string{"answer": "hi"})
	}))
	defer upstream.Close()

	td.deps.Config.QueryURL = upstream.URL
	r := newTestRouter(td)

	rec := doJSON(t, r, http.MethodPost, "/api/sessions/"+sessionID.String()+"/chat",
		`{"question":"what is the method?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi")
}
