package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeIngestSource TaskType = "ingest_source"
	TaskTypeRetrySource  TaskType = "retry_source"
	TaskTypeSeedSources  TaskType = "seed_sources"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSourceID() string
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task. Failed tasks are not retried
// here; a failing source is rescheduled through its backoff instead.
type Task struct {
	ID        string
	Type      TaskType
	SourceID  string
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSourceID() string {
	return t.SourceID
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, sourceID string) Task {
	return Task{
		ID:       uuid.NewString(),
		Type:     taskType,
		SourceID: sourceID,
	}
}
