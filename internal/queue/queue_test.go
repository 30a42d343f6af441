package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewIngestTask(t *testing.T) {
	docID := uuid.New()

	task, err := NewIngestTask(TaskTypeIngest, "acme", docID)
	require.NoError(t, err)

	assert.Equal(t, TaskTypeIngest, task.Type)
	assert.NotEqual(t, uuid.Nil, task.ID)

	var payload IngestPayload
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Equal(t, "acme", payload.TenantID)
	assert.Equal(t, docID, payload.DocumentID)
}

func TestEnqueueWithRetry_EventualSuccess(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeIngest}

	q.On("Enqueue", mock.Anything, task).Return(errors.New("down")).Once()
	q.On("Enqueue", mock.Anything, task).Return(nil).Once()

	err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond)
	require.NoError(t, err)
	q.AssertExpectations(t)
}

func TestEnqueueWithRetry_Exhausted(t *testing.T) {
	q := new(MockQueue)
	task := Task{Type: TaskTypeIngest}

	q.On("Enqueue", mock.Anything, task).Return(errors.New("down")).Times(3)

	err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond)
	assert.Error(t, err)
	q.AssertExpectations(t)
}
