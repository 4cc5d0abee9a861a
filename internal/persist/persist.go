// Package persist defines the named snapshot blobs the stores hydrate from.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/tracing"
)

// ErrNotFound is returned by Load when no blob was saved under the name
var ErrNotFound = errors.New("snapshot not found")

// Key names of the persisted blobs
const (
	AuthKey          = "clipwave-auth"
	StorageKeyPrefix = "clipwave-storage:"
)

// StorageKey returns the blob name holding a user's session snapshot
func StorageKey(userID string) string {
	return StorageKeyPrefix + userID
}

// Adapter loads and saves opaque named blobs
type Adapter interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Memory is an Adapter kept in process memory
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory adapter
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Load(ctx context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Save(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	m.blobs[name] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Instrumented wraps an Adapter with metrics and storage logs
type Instrumented struct {
	next    Adapter
	backend string
	logger  *logging.Logger
}

// Instrument wraps next; backend labels the metrics
func Instrument(next Adapter, backend string, logger *logging.Logger) *Instrumented {
	return &Instrumented{next: next, backend: backend, logger: logger}
}

func (i *Instrumented) Load(ctx context.Context, name string) ([]byte, error) {
	span, ctx := tracing.StartSpan(ctx, "persist.load")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "backend", i.backend)
	tracing.SetTag(span, "name", name)

	start := time.Now()
	data, err := i.next.Load(ctx, name)
	duration := time.Since(start)

	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
		tracing.LogError(span, err)
		i.logger.LogStorageOperation("load", i.backend, name, 0, duration, err)
	default:
		i.logger.LogStorageOperation("load", i.backend, name, int64(len(data)), duration, nil)
	}
	metrics.RecordPersistence(i.backend, "load", status, duration.Seconds())

	return data, err
}

func (i *Instrumented) Save(ctx context.Context, name string, data []byte) error {
	span, ctx := tracing.StartSpan(ctx, "persist.save")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "backend", i.backend)
	tracing.SetTag(span, "name", name)

	start := time.Now()
	err := i.next.Save(ctx, name, data)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		tracing.LogError(span, err)
	}
	metrics.RecordPersistence(i.backend, "save", status, duration.Seconds())
	i.logger.LogStorageOperation("save", i.backend, name, int64(len(data)), duration, err)

	return err
}
