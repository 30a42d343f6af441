package nlp

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAnalyzer is a mock implementation of Analyzer using testify/mock.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(Analysis), args.Error(1)
}
