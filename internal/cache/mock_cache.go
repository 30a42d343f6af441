package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetAnswer(ctx context.Context, tenant, key string) (*Result, error) {
	args := m.Called(ctx, tenant, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func (m *MockCache) SetAnswer(ctx context.Context, tenant, key string, result *Result, ttl time.Duration) error {
	args := m.Called(ctx, tenant, key, result, ttl)
	return args.Error(0)
}

func (m *MockCache) InvalidateTenant(ctx context.Context, tenant string) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
