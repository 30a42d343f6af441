package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"paperchat/internal/embeddings"
	"paperchat/internal/faults"
)

// Postgres stores vectors in a pgvector table. The tenant id is part of
// the primary key and of every WHERE clause, so cross-tenant reads cannot
// be expressed.
type Postgres struct {
	db        *sql.DB
	dimension int
}

func NewPostgres(db *sql.DB, dimension int) (*Postgres, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}
	p := &Postgres{db: db, dimension: dimension}
	if err := p.migrate(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS paper_vectors (
			tenant_id   TEXT NOT NULL,
			document_id UUID NOT NULL,
			chunk_ord   INT NOT NULL,
			chunk_text  TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			authors     TEXT NOT NULL DEFAULT '',
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY (tenant_id, document_id, chunk_ord)
		);`, p.dimension)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS paper_vectors_embedding_idx
		ON paper_vectors USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, tenant string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Provider("vector upsert begin", err)
	}
	defer tx.Rollback()
	for _, r := range records {
		if len(r.Vector) != p.dimension {
			return faults.Input(fmt.Sprintf("vector dimension %d, index expects %d", len(r.Vector), p.dimension))
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO paper_vectors(tenant_id, document_id, chunk_ord, chunk_text, title, authors, embedding)
			VALUES($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (tenant_id, document_id, chunk_ord)
			DO UPDATE SET chunk_text=excluded.chunk_text, title=excluded.title,
			              authors=excluded.authors, embedding=excluded.embedding`,
			tenant, r.DocumentID, r.ChunkIndex, r.Text, r.Title, r.Authors, pgvector.NewVector(r.Vector))
		if err != nil {
			return faults.Provider("vector upsert failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return faults.Provider("vector upsert commit", err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, tenant string, vector embeddings.Vector, k int, docIDs []string) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	query := `
		SELECT document_id, chunk_ord, chunk_text, title, authors,
		       1 - (embedding <=> $2) AS similarity
		FROM paper_vectors
		WHERE tenant_id = $1`
	args := []any{tenant, pgvector.NewVector(vector)}
	if len(docIDs) > 0 {
		query += ` AND document_id = ANY($3)`
		args = append(args, pq.Array(docIDs))
	}
	query += fmt.Sprintf(`
		ORDER BY embedding <=> $2, document_id, chunk_ord
		LIMIT %d`, k)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Provider("vector query failed", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &m.Text, &m.Title, &m.Authors, &m.Score); err != nil {
			return nil, faults.Provider("vector query scan failed", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *Postgres) DeleteDocument(ctx context.Context, tenant, documentID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM paper_vectors WHERE tenant_id=$1 AND document_id=$2`, tenant, documentID)
	if err != nil {
		return faults.Provider("vector delete failed", err)
	}
	return nil
}
