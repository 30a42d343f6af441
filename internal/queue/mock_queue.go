package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockQueue is a testify mock of Queue for handler and pipeline tests.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	args := m.Called(ctx, taskType, handler)
	return args.Error(0)
}

// OfType matches enqueued tasks by type, for use with mock.MatchedBy.
func OfType(taskType TaskType) func(Task) bool {
	return func(task Task) bool { return task.Type == taskType }
}
