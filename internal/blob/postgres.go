package blob

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PostgresStore keeps uploads in a bytea table. It shares the *sql.DB the
// metadata store opens.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS paper_blobs (
			tenant_id   TEXT NOT NULL,
			document_id UUID NOT NULL,
			filename    TEXT NOT NULL,
			content     BYTEA NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT now(),
			PRIMARY KEY (tenant_id, document_id)
		);`)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, tenant string, docID uuid.UUID, filename string, content []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_blobs(tenant_id, document_id, filename, content)
		VALUES($1,$2,$3,$4)
		ON CONFLICT (tenant_id, document_id) DO UPDATE SET filename=excluded.filename, content=excluded.content`,
		tenant, docID, filename, content)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, tenant string, docID uuid.UUID) (string, []byte, error) {
	var filename string
	var content []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT filename, content FROM paper_blobs WHERE tenant_id=$1 AND document_id=$2`, tenant, docID)
	if err := row.Scan(&filename, &content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	return filename, content, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenant string, docID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM paper_blobs WHERE tenant_id=$1 AND document_id=$2`, tenant, docID)
	return err
}
