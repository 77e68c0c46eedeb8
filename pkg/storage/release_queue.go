package storage

import (
	"context"
	"fmt"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/jobs"
)

const releaseJobType = "blob.release"

// QueuedStore writes blobs synchronously and hands releases to a retrying worker queue.
type QueuedStore struct {
	*LocalStorage
	queue *jobs.Queue
}

// NewQueuedStore wraps local storage; cfg configures the release workers.
func NewQueuedStore(local *LocalStorage, cfg jobs.QueueConfig) *QueuedStore {
	s := &QueuedStore{LocalStorage: local}
	s.queue = jobs.NewQueue("blob-release", s.handle, cfg)
	return s
}

// Start launches the release workers. They run until Stop, independent of any request or
// signal context, so releases issued by requests still draining during shutdown are accepted.
func (s *QueuedStore) Start() {
	s.queue.Start(context.Background())
}

// Stop flushes queued releases and stops the workers. Call it after the HTTP server has shut down.
func (s *QueuedStore) Stop() {
	s.queue.Stop()
}

// Release schedules ref for deletion. It only fails when the queue refuses the job.
func (s *QueuedStore) Release(ctx context.Context, ref models.BlobRef) error {
	if ref.IsZero() {
		return nil
	}
	if err := s.queue.Enqueue(jobs.Job{ID: ref.ID, Type: releaseJobType, Payload: ref}); err != nil {
		return fmt.Errorf("schedule blob release: %w", err)
	}
	return nil
}

func (s *QueuedStore) handle(ctx context.Context, job jobs.Job) error {
	ref, ok := job.Payload.(models.BlobRef)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	return s.LocalStorage.Release(ctx, ref)
}
