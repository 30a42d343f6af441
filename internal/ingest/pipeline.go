// Package ingest runs the staged pipeline that turns an uploaded paper
// into searchable vectors and stored insights: extract, chunk, embed,
// index, analyze. Runs hold no locks; the conditional status claim keeps
// at most one run in flight per document.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"paperchat/internal/blob"
	"paperchat/internal/cache"
	"paperchat/internal/chunker"
	"paperchat/internal/embeddings"
	"paperchat/internal/extract"
	"paperchat/internal/faults"
	"paperchat/internal/insights"
	"paperchat/internal/queue"
	"paperchat/internal/retry"
	"paperchat/internal/store"
	"paperchat/internal/telemetry"
	"paperchat/internal/vectorstore"
)

const embedBatchSize = 64

// Pipeline wires the ingestion stages to their backing capabilities.
type Pipeline struct {
	Store    store.Store
	Blobs    blob.Store
	Index    vectorstore.Index
	Embedder embeddings.Embedder
	Insights *insights.Extractor
	Cache    cache.Cache
	Log      *slog.Logger
	Chunks   chunker.Options
	Retry    retry.Policy
}

// HandleTask adapts Run to the queue handler contract. Returned errors
// drive queue-level redelivery, so deterministic outcomes return nil.
func (p *Pipeline) HandleTask(ctx context.Context, task queue.Task) error {
	var payload queue.IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		p.Log.Error("undecodable ingest payload", "task_id", task.ID, "err", err)
		return nil
	}
	err := p.Run(ctx, payload.TenantID, payload.DocumentID)
	if err != nil && !faults.Retryable(err) {
		p.Log.Error("ingestion failed permanently",
			"tenant", payload.TenantID, "document_id", payload.DocumentID, "err", err)
		return nil
	}
	return err
}

// Run executes one ingestion attempt end to end. A lost claim or a
// document deleted mid-run aborts quietly; stage failures mark the
// document failed with the stage that died.
func (p *Pipeline) Run(ctx context.Context, tenant string, docID uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Run",
		attribute.String("tenant", tenant),
		attribute.String("document_id", docID.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	log := p.Log.With("tenant", tenant, "document_id", docID)

	err = p.Store.ClaimDocument(ctx, tenant, docID)
	switch {
	case errors.Is(err, store.ErrDocumentNotFound):
		log.Info("skipping ingestion, document no longer exists")
		return nil
	case faults.IsKind(err, faults.KindConsistency):
		// A redelivered or duplicate task; the live run owns the document.
		log.Info("skipping ingestion, run already in flight")
		return nil
	case err != nil:
		return fmt.Errorf("claim document: %w", err)
	}

	doc, err := p.Store.GetDocument(ctx, tenant, docID)
	if err != nil {
		return p.abort(ctx, log, tenant, docID, err)
	}

	text, err := p.sourceText(ctx, doc)
	if err != nil {
		return p.failStage(ctx, log, tenant, docID, store.StageExtracting, err)
	}

	ok, err := p.advance(ctx, log, tenant, docID, store.StageChunking)
	if err != nil || !ok {
		return err
	}
	chunks := chunker.Split(text, p.Chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		return p.failStage(ctx, log, tenant, docID, store.StageChunking,
			faults.Input("document has no chunkable text"))
	}

	ok, err = p.advance(ctx, log, tenant, docID, store.StageEmbedding)
	if err != nil || !ok {
		return err
	}
	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return p.failStage(ctx, log, tenant, docID, store.StageEmbedding, err)
	}

	ok, err = p.advance(ctx, log, tenant, docID, store.StageIndexing)
	if err != nil || !ok {
		return err
	}
	records := buildRecords(doc, chunks, vectors)
	err = retry.Do(ctx, p.Retry, func(ctx context.Context) error {
		return p.Index.Upsert(ctx, tenant, records)
	})
	if err != nil {
		return p.failStage(ctx, log, tenant, docID, store.StageIndexing, err)
	}

	ok, err = p.advance(ctx, log, tenant, docID, store.StageAnalyzing)
	if err != nil || !ok {
		return err
	}
	// Insight extraction is best effort. The paper is already searchable,
	// so a dead analyzer must not fail the whole run.
	if ins, insErr := p.Insights.Extract(ctx, doc.Title, text); insErr != nil {
		log.Warn("insight extraction failed, completing without insights", "err", insErr)
	} else if saveErr := p.Store.SaveInsight(ctx, tenant, docID, ins); saveErr != nil {
		log.Warn("could not persist insights", "err", saveErr)
	}

	if err := p.Store.CompleteDocument(ctx, tenant, docID, len(chunks)); err != nil {
		return p.abort(ctx, log, tenant, docID, err)
	}

	p.invalidate(ctx, log, tenant)
	log.Info("ingestion completed", "chunks", len(chunks))
	return nil
}

// sourceText resolves the raw text for a document. Uploads come from the
// blob store and go through format extraction; external imports carry
// their abstract as the indexed text.
func (p *Pipeline) sourceText(ctx context.Context, doc store.Document) (string, error) {
	if doc.Source == store.SourceImport {
		text := strings.TrimSpace(doc.Abstract)
		if text == "" {
			return "", faults.Input("imported paper has no abstract text")
		}
		return text, nil
	}

	filename, content, err := p.Blobs.Get(ctx, doc.TenantID, doc.ID)
	if errors.Is(err, blob.ErrNotFound) {
		return "", faults.Input("uploaded file content is missing")
	}
	if err != nil {
		return "", faults.Provider("load uploaded file", err)
	}
	text, err := extract.Text(filename, content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", faults.Input("no text could be extracted from the file")
	}
	return text, nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([]embeddings.Vector, error) {
	vectors := make([]embeddings.Vector, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		var batch []embeddings.Vector
		err := retry.Do(ctx, p.Retry, func(ctx context.Context) error {
			var embedErr error
			batch, embedErr = p.Embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func buildRecords(doc store.Document, chunks []chunker.Chunk, vectors []embeddings.Vector) []vectorstore.Record {
	records := make([]vectorstore.Record, 0, len(chunks))
	for i, c := range chunks {
		records = append(records, vectorstore.Record{
			DocumentID: doc.ID.String(),
			ChunkIndex: c.Index,
			Text:       c.Text,
			Title:      doc.Title,
			Authors:    doc.Authors,
			Vector:     vectors[i],
		})
	}
	return records
}

// advance moves the run to the next stage. A missing row means the
// document was deleted mid-run; the run aborts and sweeps its vectors,
// reported as ok=false with a nil error. A lost claim also aborts, but
// the document is still live, so its vectors stay untouched.
func (p *Pipeline) advance(ctx context.Context, log *slog.Logger, tenant string, docID uuid.UUID, stage store.Stage) (bool, error) {
	err := p.Store.AdvanceDocument(ctx, tenant, docID, stage)
	switch {
	case errors.Is(err, store.ErrDocumentNotFound):
		log.Info("document deleted mid-run, aborting", "stage", stage)
		if cleanupErr := p.Index.DeleteDocument(ctx, tenant, docID.String()); cleanupErr != nil {
			log.Warn("could not sweep vectors of deleted document", "err", cleanupErr)
		}
		return false, nil
	case faults.IsKind(err, faults.KindConsistency):
		log.Info("run lost its claim, yielding to the new owner", "stage", stage)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("advance to %s: %w", stage, err)
	}
	return true, nil
}

func (p *Pipeline) failStage(ctx context.Context, log *slog.Logger, tenant string, docID uuid.UUID, stage store.Stage, cause error) error {
	log.Error("ingestion stage failed", "stage", stage, "err", cause)
	err := p.Store.FailDocument(ctx, tenant, docID, stage)
	// A deleted row or a lost claim means the document's fate belongs to
	// someone else now; there is nothing to mark.
	if err != nil && !errors.Is(err, store.ErrDocumentNotFound) && !faults.IsKind(err, faults.KindConsistency) {
		log.Error("could not mark document failed", "err", err)
	}
	return cause
}

func (p *Pipeline) abort(ctx context.Context, log *slog.Logger, tenant string, docID uuid.UUID, cause error) error {
	if errors.Is(cause, store.ErrDocumentNotFound) {
		log.Info("document deleted mid-run, aborting")
		if err := p.Index.DeleteDocument(ctx, tenant, docID.String()); err != nil {
			log.Warn("could not sweep vectors of deleted document", "err", err)
		}
		return nil
	}
	if faults.IsKind(cause, faults.KindConsistency) {
		log.Info("run lost its claim, yielding to the new owner")
		return nil
	}
	return cause
}

func (p *Pipeline) invalidate(ctx context.Context, log *slog.Logger, tenant string) {
	if err := p.Cache.InvalidateTenant(ctx, tenant); err != nil {
		log.Warn("could not invalidate answer cache", "err", err)
	}
}

// RequeueStalled returns every document stuck in processing longer than
// maxAge to pending and enqueues a fresh ingestion task for it. Crashed
// workers leave such rows behind; the periodic sweep picks them up.
func RequeueStalled(ctx context.Context, st store.Store, q queue.Queue, log *slog.Logger, maxAge time.Duration) (int, error) {
	stalled, err := st.ListStalled(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("list stalled documents: %w", err)
	}

	requeued := 0
	for _, doc := range stalled {
		if err := st.ResetDocument(ctx, doc.TenantID, doc.ID); err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				continue // another sweeper or a delete won the race
			}
			return requeued, fmt.Errorf("reset document %s: %w", doc.ID, err)
		}
		task, err := queue.NewIngestTask(queue.TaskTypeIngest, doc.TenantID, doc.ID)
		if err != nil {
			return requeued, err
		}
		if err := queue.EnqueueWithRetry(ctx, q, task, 3, 100*time.Millisecond); err != nil {
			return requeued, fmt.Errorf("enqueue stalled document %s: %w", doc.ID, err)
		}
		log.Info("requeued stalled document", "tenant", doc.TenantID, "document_id", doc.ID)
		requeued++
	}
	return requeued, nil
}

// HandleRefreshTask re-runs insight extraction for an already ingested
// document, leaving its vectors untouched.
func (p *Pipeline) HandleRefreshTask(ctx context.Context, task queue.Task) error {
	var payload queue.IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		p.Log.Error("undecodable refresh payload", "task_id", task.ID, "err", err)
		return nil
	}
	err := p.RefreshInsights(ctx, payload.TenantID, payload.DocumentID)
	if err != nil && !faults.Retryable(err) {
		p.Log.Error("insight refresh failed permanently",
			"tenant", payload.TenantID, "document_id", payload.DocumentID, "err", err)
		return nil
	}
	return err
}

// RefreshInsights re-runs only the analysis stage for a completed
// document, without touching its vectors.
func (p *Pipeline) RefreshInsights(ctx context.Context, tenant string, docID uuid.UUID) error {
	doc, err := p.Store.GetDocument(ctx, tenant, docID)
	if err != nil {
		return err
	}
	if doc.Status != store.StatusCompleted {
		return faults.Input("document is not fully ingested")
	}

	text, err := p.sourceText(ctx, doc)
	if err != nil {
		return err
	}
	ins, err := p.Insights.Extract(ctx, doc.Title, text)
	if err != nil {
		return err
	}
	return p.Store.SaveInsight(ctx, tenant, docID, ins)
}
