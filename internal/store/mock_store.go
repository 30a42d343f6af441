package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"paperchat/internal/insights"
)

// MockStore is a testify mock of Store for tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) GetDocument(ctx context.Context, tenant string, id uuid.UUID) (Document, error) {
	args := m.Called(ctx, tenant, id)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) ListDocuments(ctx context.Context, tenant string) ([]Document, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockStore) ClaimDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockStore) AdvanceDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error {
	args := m.Called(ctx, tenant, id, stage)
	return args.Error(0)
}

func (m *MockStore) CompleteDocument(ctx context.Context, tenant string, id uuid.UUID, chunkCount int) error {
	args := m.Called(ctx, tenant, id, chunkCount)
	return args.Error(0)
}

func (m *MockStore) FailDocument(ctx context.Context, tenant string, id uuid.UUID, stage Stage) error {
	args := m.Called(ctx, tenant, id, stage)
	return args.Error(0)
}

func (m *MockStore) ResetDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockStore) UpdateDocumentMeta(ctx context.Context, tenant string, id uuid.UUID, title, authors string) error {
	args := m.Called(ctx, tenant, id, title, authors)
	return args.Error(0)
}

func (m *MockStore) DeleteDocument(ctx context.Context, tenant string, id uuid.UUID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockStore) ListStalled(ctx context.Context, cutoff time.Time) ([]Document, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockStore) CreateSession(ctx context.Context, s Session) (Session, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(Session), args.Error(1)
}

func (m *MockStore) GetSession(ctx context.Context, tenant string, id uuid.UUID) (Session, error) {
	args := m.Called(ctx, tenant, id)
	return args.Get(0).(Session), args.Error(1)
}

func (m *MockStore) ListSessions(ctx context.Context, tenant string) ([]Session, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockStore) RenameSession(ctx context.Context, tenant string, id uuid.UUID, name string) error {
	args := m.Called(ctx, tenant, id, name)
	return args.Error(0)
}

func (m *MockStore) DeleteSession(ctx context.Context, tenant string, id uuid.UUID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockStore) AddSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error {
	args := m.Called(ctx, tenant, id, docID)
	return args.Error(0)
}

func (m *MockStore) RemoveSessionPaper(ctx context.Context, tenant string, id, docID uuid.UUID) error {
	args := m.Called(ctx, tenant, id, docID)
	return args.Error(0)
}

func (m *MockStore) TouchSession(ctx context.Context, tenant string, id uuid.UUID) error {
	args := m.Called(ctx, tenant, id)
	return args.Error(0)
}

func (m *MockStore) AppendTurn(ctx context.Context, tenant string, turn ChatTurn) error {
	args := m.Called(ctx, tenant, turn)
	return args.Error(0)
}

func (m *MockStore) ListTurns(ctx context.Context, tenant string, sessionID uuid.UUID, limit int) ([]ChatTurn, error) {
	args := m.Called(ctx, tenant, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ChatTurn), args.Error(1)
}

func (m *MockStore) ClearTurns(ctx context.Context, tenant string, sessionID uuid.UUID) error {
	args := m.Called(ctx, tenant, sessionID)
	return args.Error(0)
}

func (m *MockStore) SaveInsight(ctx context.Context, tenant string, docID uuid.UUID, ins insights.Insight) error {
	args := m.Called(ctx, tenant, docID, ins)
	return args.Error(0)
}

func (m *MockStore) GetInsight(ctx context.Context, tenant string, docID uuid.UUID) (insights.Insight, error) {
	args := m.Called(ctx, tenant, docID)
	return args.Get(0).(insights.Insight), args.Error(1)
}
