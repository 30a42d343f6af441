package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, system, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Chat(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	args := m.Called(ctx, system, messages, maxTokens)
	return args.String(0), args.Error(1)
}
