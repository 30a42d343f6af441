package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"paperchat/internal/faults"
	"paperchat/internal/insights"
)

// OpenDB opens and verifies a pgx database/sql connection shared by the
// metadata store, the blob store and the pgvector index.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// PostgresStore persists documents, sessions, chat turns and insights.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate store schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Advisory lock so concurrent replicas don't race CREATE TABLE.
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(3720414502)`); err != nil {
		return err
	}
	defer conn.ExecContext(ctx, `SELECT pg_advisory_unlock(3720414502)`)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS paper_documents (
			tenant_id   TEXT        NOT NULL,
			id          UUID        NOT NULL,
			title       TEXT        NOT NULL,
			authors     TEXT        NOT NULL DEFAULT '',
			abstract    TEXT        NOT NULL DEFAULT '',
			source      TEXT        NOT NULL,
			status      TEXT        NOT NULL,
			stage       TEXT        NOT NULL DEFAULT '',
			chunk_count INT         NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS paper_documents_status_idx
			ON paper_documents (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS paper_sessions (
			tenant_id   TEXT        NOT NULL,
			id          UUID        NOT NULL,
			name        TEXT        NOT NULL,
			paper_ids   TEXT[]      NOT NULL DEFAULT '{}',
			last_active TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			tenant_id  TEXT        NOT NULL,
			session_id UUID        NOT NULL,
			turn_id    TEXT        NOT NULL,
			role       TEXT        NOT NULL,
			content    TEXT        NOT NULL,
			sources    JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ,
			PRIMARY KEY (tenant_id, session_id, turn_id)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_insights (
			tenant_id    TEXT        NOT NULL,
			document_id  UUID        NOT NULL,
			payload      JSONB       NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, document_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const documentColumns = `tenant_id, id, title, authors, abstract, source, status, stage, chunk_count, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	err := row.Scan(&d.TenantID, &d.ID, &d.Title, &d.Authors, &d.Abstract,
		&d.Source, &d.Status, &d.Stage, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.Status = StatusPending
	doc.Stage = ""

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO paper_documents (tenant_id, id, title, authors, abstract, source, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+documentColumns,
		doc.TenantID, doc.ID, doc.Title, doc.Authors, doc.Abstract, doc.Source, doc.Status)
	created, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, tenant string, id uuid.UUID) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM paper_documents
		WHERE tenant_id = $1 AND id = $2`, tenant, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("select document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, tenant string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM paper_documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ClaimDocument is the fencing write: only one worker can move a document
// out of a settled state, so queue redeliveries and concurrent re-ingest
// requests collapse to a single run.
func (s *PostgresStore) ClaimDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paper_documents
		SET status = $3, stage = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		  AND status IN ($5, $6, $7)`,
		tenant, id, StatusProcessing, StageExtracting,
		StatusPending, StatusFailed, StatusCompleted)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetDocument(ctx, tenant, id); err != nil {
			return err
		}
		return faults.Consistency("document ingestion already in flight")
	}
	return nil
}

func (s *PostgresStore) AdvanceDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error {
	return s.transition(ctx, tenant, id, `
		UPDATE paper_documents
		SET stage = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $4`,
		stage, StatusProcessing)
}

func (s *PostgresStore) CompleteDocument(ctx context.Context, tenant string, id uuid.UUID, chunkCount int) error {
	return s.transition(ctx, tenant, id, `
		UPDATE paper_documents
		SET status = $3, stage = '', chunk_count = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		StatusCompleted, chunkCount, StatusProcessing)
}

func (s *PostgresStore) FailDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error {
	return s.transition(ctx, tenant, id, `
		UPDATE paper_documents
		SET status = $3, stage = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $5`,
		StatusFailed, stage, StatusProcessing)
}

func (s *PostgresStore) ResetDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	return s.transition(ctx, tenant, id, `
		UPDATE paper_documents
		SET status = $3, stage = '', updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $4`,
		StatusPending, StatusProcessing)
}

// transition applies a conditional document update. Zero affected rows is
// ambiguous: the row may be gone, or it may exist with a status that no
// longer satisfies the condition (a stall sweep or competing run took the
// claim). The two outcomes must stay distinguishable, so a re-read settles
// which one happened: ErrDocumentNotFound for a deleted row, a consistency
// fault for a lost claim.
func (s *PostgresStore) transition(ctx context.Context, tenant string, id uuid.UUID, query string, extra ...any) error {
	args := append([]any{tenant, id}, extra...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetDocument(ctx, tenant, id); err != nil {
			return err
		}
		return faults.Consistency("document run lost its status claim")
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentMeta(ctx context.Context, tenant string, id uuid.UUID, title, authors string) error {
	return s.transition(ctx, tenant, id, `
		UPDATE paper_documents
		SET title = $3, authors = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		title, authors)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM paper_insights WHERE tenant_id = $1 AND document_id = $2`,
		tenant, id); err != nil {
		return fmt.Errorf("delete insights: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM paper_documents WHERE tenant_id = $1 AND id = $2`, tenant, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) ListStalled(ctx context.Context, cutoff time.Time) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM paper_documents
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`, StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stalled documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	ids := make([]string, 0, len(sess.PaperIDs))
	for _, id := range sess.PaperIDs {
		ids = append(ids, id.String())
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO paper_sessions (tenant_id, id, name, paper_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING last_active`,
		sess.TenantID, sess.ID, sess.Name, pq.Array(ids))
	if err := row.Scan(&sess.LastActive); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tenant string, id uuid.UUID) (Session, error) {
	var (
		sess Session
		ids  []string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, id, name, paper_ids, last_active
		FROM paper_sessions WHERE tenant_id = $1 AND id = $2`, tenant, id)
	err := row.Scan(&sess.TenantID, &sess.ID, &sess.Name, pq.Array(&ids), &sess.LastActive)
	if err == sql.ErrNoRows {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("select session: %w", err)
	}
	sess.PaperIDs, err = parseUUIDs(ids)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, tenant string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, id, name, paper_ids, last_active
		FROM paper_sessions WHERE tenant_id = $1
		ORDER BY last_active DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess Session
			ids  []string
		)
		if err := rows.Scan(&sess.TenantID, &sess.ID, &sess.Name, pq.Array(&ids), &sess.LastActive); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.PaperIDs, err = parseUUIDs(ids)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) RenameSession(ctx context.Context, tenant string, id uuid.UUID, name string) error {
	return s.sessionUpdate(ctx, `
		UPDATE paper_sessions SET name = $3, last_active = now()
		WHERE tenant_id = $1 AND id = $2`, tenant, id, name)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tenant string, id uuid.UUID) error {
	if err := s.ClearTurns(ctx, tenant, id); err != nil {
		return err
	}
	return s.sessionUpdate(ctx, `
		DELETE FROM paper_sessions WHERE tenant_id = $1 AND id = $2`, tenant, id)
}

func (s *PostgresStore) AddSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paper_sessions
		SET paper_ids = array_append(paper_ids, $3), last_active = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT ($3 = ANY(paper_ids))`,
		tenant, id, docID.String())
	if err != nil {
		return fmt.Errorf("add session paper: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already a member is fine; a missing session is not.
		_, err := s.GetSession(ctx, tenant, id)
		return err
	}
	return nil
}

func (s *PostgresStore) RemoveSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paper_sessions
		SET paper_ids = array_remove(paper_ids, $3), last_active = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenant, id, docID.String())
	if err != nil {
		return fmt.Errorf("remove session paper: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, tenant string, id uuid.UUID) error {
	return s.sessionUpdate(ctx, `
		UPDATE paper_sessions SET last_active = now()
		WHERE tenant_id = $1 AND id = $2`, tenant, id)
}

func (s *PostgresStore) sessionUpdate(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, tenant string, turn ChatTurn) error {
	var sources any
	if len(turn.Sources) > 0 {
		data, err := json.Marshal(turn.Sources)
		if err != nil {
			return fmt.Errorf("marshal turn sources: %w", err)
		}
		sources = data
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_turns (tenant_id, session_id, turn_id, role, content, sources, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenant, turn.SessionID, turn.TurnID, turn.Role, turn.Content, sources, turn.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, tenant string, sessionID uuid.UUID, limit int) ([]ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_id, role, content, sources, created_at, expires_at
		FROM (
			SELECT session_id, turn_id, role, content, sources, created_at, expires_at
			FROM chat_turns
			WHERE tenant_id = $1 AND session_id = $2
			  AND (expires_at IS NULL OR expires_at > now())
			ORDER BY turn_id DESC
			LIMIT $3
		) recent
		ORDER BY turn_id ASC`, tenant, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	defer rows.Close()

	var turns []ChatTurn
	for rows.Next() {
		var (
			turn    ChatTurn
			sources []byte
		)
		if err := rows.Scan(&turn.SessionID, &turn.TurnID, &turn.Role, &turn.Content,
			&sources, &turn.CreatedAt, &turn.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &turn.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal turn sources: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) ClearTurns(ctx context.Context, tenant string, sessionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_turns WHERE tenant_id = $1 AND session_id = $2`,
		tenant, sessionID)
	if err != nil {
		return fmt.Errorf("clear chat turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveInsight(ctx context.Context, tenant string, docID uuid.UUID, ins insights.Insight) error {
	payload, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paper_insights (tenant_id, document_id, payload, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, document_id)
		DO UPDATE SET payload = EXCLUDED.payload, generated_at = EXCLUDED.generated_at`,
		tenant, docID, payload, ins.GeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert insight: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInsight(ctx context.Context, tenant string, docID uuid.UUID) (insights.Insight, error) {
	var payload []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM paper_insights
		WHERE tenant_id = $1 AND document_id = $2`, tenant, docID)
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return insights.Insight{}, ErrInsightNotFound
	}
	if err != nil {
		return insights.Insight{}, fmt.Errorf("select insight: %w", err)
	}
	var ins insights.Insight
	if err := json.Unmarshal(payload, &ins); err != nil {
		return insights.Insight{}, fmt.Errorf("unmarshal insight: %w", err)
	}
	return ins, nil
}

func parseUUIDs(ids []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse paper id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, nil
}
