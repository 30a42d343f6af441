package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"paperchat/internal/insights"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Stage names the pipeline step a processing document is in, or the step
// a failed document died in.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageAnalyzing  Stage = "analyzing"
)

type DocumentSource string

const (
	SourceUpload DocumentSource = "upload"
	SourceImport DocumentSource = "external-import"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInsightNotFound  = errors.New("insight not found")
)

// Document is one paper's metadata and ingestion state. Only the
// ingestion pipeline mutates status and stage, through the conditional
// transitions below.
type Document struct {
	TenantID   string
	ID         uuid.UUID
	Title      string
	Authors    string
	Abstract   string // used instead of a blob for external imports
	Source     DocumentSource
	Status     DocumentStatus
	Stage      Stage
	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session is a named set of papers that scopes retrieval.
type Session struct {
	TenantID   string
	ID         uuid.UUID
	Name       string
	PaperIDs   []uuid.UUID
	LastActive time.Time
}

// Source is one citation attached to an assistant turn.
type Source struct {
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title"`
	Authors        string  `json:"authors"`
	RelevanceScore float32 `json:"relevance_score"`
}

// ChatTurn is one append-only transcript entry. TurnID is a ksuid, the
// sole ordering key; turns are never mutated or reordered after creation.
type ChatTurn struct {
	SessionID uuid.UUID
	TurnID    string
	Role      string // "user" or "assistant"
	Content   string
	Sources   []Source // assistant turns only
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Store is the status/metadata persistence contract. Every method is
// scoped by tenant; conditional transitions back the
// at-most-one-ingestion-in-flight invariant without held locks.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, tenant string, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context, tenant string) ([]Document, error)
	// ClaimDocument conditionally moves the document into processing.
	// A document already in flight yields a consistency fault; a missing
	// document yields ErrDocumentNotFound.
	ClaimDocument(ctx context.Context, tenant string, id uuid.UUID) error
	// AdvanceDocument records the stage of an in-flight run. It returns
	// ErrDocumentNotFound only when the row is gone; if the row exists but
	// the run no longer holds the processing claim it returns a
	// consistency fault. CompleteDocument and FailDocument follow the same
	// contract.
	AdvanceDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error
	CompleteDocument(ctx context.Context, tenant string, id uuid.UUID, chunkCount int) error
	FailDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error
	// ResetDocument returns a stalled processing document to pending.
	ResetDocument(ctx context.Context, tenant string, id uuid.UUID) error
	UpdateDocumentMeta(ctx context.Context, tenant string, id uuid.UUID, title, authors string) error
	DeleteDocument(ctx context.Context, tenant string, id uuid.UUID) error
	// ListStalled returns processing documents across all tenants whose
	// last transition is older than the cutoff.
	ListStalled(ctx context.Context, cutoff time.Time) ([]Document, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, tenant string, id uuid.UUID) (Session, error)
	ListSessions(ctx context.Context, tenant string) ([]Session, error)
	RenameSession(ctx context.Context, tenant string, id uuid.UUID, name string) error
	DeleteSession(ctx context.Context, tenant string, id uuid.UUID) error
	// AddSessionPaper and RemoveSessionPaper are idempotent.
	AddSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error
	RemoveSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error
	TouchSession(ctx context.Context, tenant string, id uuid.UUID) error

	AppendTurn(ctx context.Context, tenant string, turn ChatTurn) error
	// ListTurns returns the most recent limit turns in ascending order.
	ListTurns(ctx context.Context, tenant string, sessionID uuid.UUID, limit int) ([]ChatTurn, error)
	ClearTurns(ctx context.Context, tenant string, sessionID uuid.UUID) error

	// SaveInsight atomically replaces the document's insight record.
	SaveInsight(ctx context.Context, tenant string, docID uuid.UUID, ins insights.Insight) error
	GetInsight(ctx context.Context, tenant string, docID uuid.UUID) (insights.Insight, error)
}
