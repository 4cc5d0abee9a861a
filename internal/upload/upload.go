// Package upload stages incoming video files in the blob backend so they can
// be reopened after the request that carried them has ended.
package upload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/google/uuid"
)

// Upload results recorded in metrics
const (
	ResultStaged   = "staged"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Staged is a validated upload held in the backend
type Staged struct {
	Key       string
	File      *models.RawFile
	CreatedAt time.Time
}

// Stager keeps at most one staged upload per owner. Staging a new file for an
// owner discards the previous one.
type Stager struct {
	backend blob.Backend
	logger  *logging.Logger

	mu     sync.Mutex
	staged map[string]*Staged
}

// NewStager creates a stager writing under uploads/ in backend
func NewStager(backend blob.Backend, logger *logging.Logger) *Stager {
	return &Stager{
		backend: backend,
		logger:  logger.WithComponent("upload"),
		staged:  make(map[string]*Staged),
	}
}

func uploadKey(id string) string {
	return "uploads/" + id
}

// Stage validates the file metadata, copies r into the backend and returns a
// RawFile that reads the staged bytes back
func (s *Stager) Stage(ctx context.Context, owner, name, mimeType string, size int64, r io.Reader) (*Staged, error) {
	if err := videoutil.ValidateVideoFile(mimeType, size); err != nil {
		metrics.RecordUpload(ResultRejected, size)
		return nil, err
	}

	key := uploadKey(uuid.New().String())
	start := time.Now()
	err := s.backend.Put(ctx, key, r, size, mimeType)
	s.logger.LogStorageOperation("stage", "blob", key, size, time.Since(start), err)
	if err != nil {
		metrics.RecordUpload(ResultFailed, size)
		return nil, fmt.Errorf("failed to stage upload %q: %w", name, err)
	}

	backend := s.backend
	staged := &Staged{
		Key: key,
		File: models.NewRawFile(name, mimeType, size, func() (io.ReadCloser, error) {
			return backend.Open(context.Background(), key)
		}),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	prev := s.staged[owner]
	s.staged[owner] = staged
	s.mu.Unlock()

	if prev != nil {
		s.discard(ctx, prev.Key)
	}

	metrics.RecordUpload(ResultStaged, size)
	return staged, nil
}

// Current returns the owner's staged upload, if any
func (s *Stager) Current(owner string) (*Staged, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staged[owner]
	return st, ok
}

// Release discards the owner's staged upload
func (s *Stager) Release(ctx context.Context, owner string) {
	s.mu.Lock()
	prev := s.staged[owner]
	delete(s.staged, owner)
	s.mu.Unlock()

	if prev != nil {
		s.discard(ctx, prev.Key)
	}
}

// ReleaseAll discards every staged upload
func (s *Stager) ReleaseAll(ctx context.Context) {
	s.mu.Lock()
	all := s.staged
	s.staged = make(map[string]*Staged)
	s.mu.Unlock()

	for _, st := range all {
		s.discard(ctx, st.Key)
	}
}

func (s *Stager) discard(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("failed to discard staged upload")
	}
}
