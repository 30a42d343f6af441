package blob

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, tenant string, docID uuid.UUID, filename string, content []byte) error {
	args := m.Called(ctx, tenant, docID, filename, content)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, tenant string, docID uuid.UUID) (string, []byte, error) {
	args := m.Called(ctx, tenant, docID)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).([]byte), args.Error(2)
}

func (m *MockStore) Delete(ctx context.Context, tenant string, docID uuid.UUID) error {
	args := m.Called(ctx, tenant, docID)
	return args.Error(0)
}
