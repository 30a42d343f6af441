package main

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paperchat/internal/app"
	"paperchat/internal/faults"
	"paperchat/internal/httputil"
	"paperchat/internal/queue"
	"paperchat/internal/store"
)

type paperResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Authors    string    `json:"authors,omitempty"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toPaperResponse(d store.Document) paperResponse {
	return paperResponse{
		ID:         d.ID,
		Title:      d.Title,
		Authors:    d.Authors,
		Source:     string(d.Source),
		Status:     string(d.Status),
		Stage:      string(d.Stage),
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := httputil.TenantID(r)

		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}
		if !allowedFile(header.Filename, header.Header.Get("Content-Type")) {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			title = header.Filename
		}

		doc, err := deps.Store.CreateDocument(ctx, store.Document{
			TenantID: tenant,
			Title:    title,
			Authors:  strings.TrimSpace(r.FormValue("authors")),
			Source:   store.SourceUpload,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}
		if err := deps.Blobs.Put(ctx, tenant, doc.ID, header.Filename, content); err != nil {
			httputil.Fail(deps.Log, w, "failed to store file content", err, http.StatusInternalServerError)
			return
		}

		if err := enqueueIngest(r, deps, tenant, doc.ID); err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue ingestion", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, toPaperResponse(doc))
	}
}

func allowedFile(filename, contentType string) bool {
	switch contentType {
	case "text/plain", "application/pdf":
		return true
	case "":
		ext := strings.ToLower(filepath.Ext(filename))
		return ext == ".txt" || ext == ".pdf"
	default:
		return false
	}
}

type importRequest struct {
	Title    string `json:"title" validate:"required,max=500"`
	Authors  string `json:"authors" validate:"max=500"`
	Abstract string `json:"abstract" validate:"required"`
}

func importHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := httputil.TenantID(r)

		var req importRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, store.Document{
			TenantID: tenant,
			Title:    req.Title,
			Authors:  req.Authors,
			Abstract: req.Abstract,
			Source:   store.SourceImport,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		if err := enqueueIngest(r, deps, tenant, doc.ID); err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue ingestion", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, toPaperResponse(doc))
	}
}

func listPapersHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(r.Context(), httputil.TenantID(r))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list papers", err, http.StatusInternalServerError)
			return
		}
		out := make([]paperResponse, 0, len(docs))
		for _, d := range docs {
			out = append(out, toPaperResponse(d))
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func paperStatusHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), httputil.TenantID(r), id)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to load paper", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toPaperResponse(doc))
	}
}

type updatePaperRequest struct {
	Title   string `json:"title" validate:"required,max=500"`
	Authors string `json:"authors" validate:"max=500"`
}

// updatePaperHandler edits display metadata only. Indexed vectors keep
// the old title until the paper is reingested.
func updatePaperHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		var req updatePaperRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}
		if err := deps.Store.UpdateDocumentMeta(r.Context(), httputil.TenantID(r), id, req.Title, req.Authors); err != nil {
			httputil.FailErr(deps.Log, w, "failed to update paper", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func insightsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		ins, err := deps.Store.GetInsight(r.Context(), httputil.TenantID(r), id)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to load insights", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, ins)
	}
}

func reingestHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		tenant := httputil.TenantID(r)
		if _, err := deps.Store.GetDocument(r.Context(), tenant, id); err != nil {
			httputil.FailErr(deps.Log, w, "failed to load paper", err)
			return
		}
		if err := enqueueIngest(r, deps, tenant, id); err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue ingestion", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func refreshInsightsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		tenant := httputil.TenantID(r)
		doc, err := deps.Store.GetDocument(r.Context(), tenant, id)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to load paper", err)
			return
		}
		if doc.Status != store.StatusCompleted {
			httputil.Fail(deps.Log, w, "paper is not fully ingested", nil, http.StatusConflict)
			return
		}

		task, err := queue.NewIngestTask(queue.TaskTypeReingest, tenant, id)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to build task", err, http.StatusInternalServerError)
			return
		}
		if err := queue.EnqueueWithRetry(r.Context(), deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue insight refresh", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func deletePaperHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		ctx := r.Context()
		tenant := httputil.TenantID(r)

		// The metadata row goes first: an in-flight ingestion run notices
		// the missing row at its next stage transition and aborts.
		if err := deps.Store.DeleteDocument(ctx, tenant, id); err != nil {
			httputil.FailErr(deps.Log, w, "failed to delete paper", err)
			return
		}
		if err := deps.Index.DeleteDocument(ctx, tenant, id.String()); err != nil {
			deps.Log.Warn("failed to delete paper vectors", "tenant", tenant, "document_id", id, "err", err)
		}
		if err := deps.Blobs.Delete(ctx, tenant, id); err != nil {
			deps.Log.Warn("failed to delete paper blob", "tenant", tenant, "document_id", id, "err", err)
		}
		if err := deps.Cache.InvalidateTenant(ctx, tenant); err != nil {
			deps.Log.Warn("failed to invalidate answer cache", "tenant", tenant, "err", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func enqueueIngest(r *http.Request, deps app.Deps, tenant string, docID uuid.UUID) error {
	task, err := queue.NewIngestTask(queue.TaskTypeIngest, tenant, docID)
	if err != nil {
		return err
	}
	return queue.EnqueueWithRetry(r.Context(), deps.Queue, task, 3, 200*time.Millisecond)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, faults.Input("not a valid UUID")
	}
	return id, nil
}
