package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"paperchat/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	TaskTypeIngest   TaskType = "ingest"
	TaskTypeReingest TaskType = "reingest"
)

// Task represents a unit of work shared across services.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// IngestPayload identifies the document an ingestion task targets.
type IngestPayload struct {
	TenantID   string    `json:"tenant_id"`
	DocumentID uuid.UUID `json:"document_id"`
}

// NewIngestTask builds an ingestion task for the given document.
func NewIngestTask(taskType TaskType, tenant string, docID uuid.UUID) (Task, error) {
	payload, err := json.Marshal(IngestPayload{TenantID: tenant, DocumentID: docID})
	if err != nil {
		return Task{}, fmt.Errorf("marshal ingest payload: %w", err)
	}
	return Task{ID: uuid.New(), Type: taskType, Payload: payload}, nil
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := q.Enqueue(ctx, task); err == nil {
			return nil
		} else if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return nil
}
