package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/persist"
)

// Manager hands out one hydrated store per user
type Manager struct {
	urls    URLRegistry
	adapter persist.Adapter
	logger  *logging.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates a manager whose stores share urls and adapter
func NewManager(urls URLRegistry, adapter persist.Adapter, logger *logging.Logger) *Manager {
	return &Manager{
		urls:    urls,
		adapter: adapter,
		logger:  logger,
		stores:  make(map[string]*Store),
	}
}

// For returns the user's store, creating and hydrating it on first use. A
// store whose hydration fails is not kept, so the next call retries.
func (m *Manager) For(ctx context.Context, userID string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[userID]; ok {
		return s, nil
	}

	s := New(userID, m.urls, m.adapter, m.logger)
	if err := s.Hydrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to hydrate session for %s: %w", userID, err)
	}
	m.stores[userID] = s
	return s, nil
}

// Loaded returns the user's store if it has been created
func (m *Manager) Loaded(userID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[userID]
	return s, ok
}

// SaveAll persists every loaded store and returns the first error
func (m *Manager) SaveAll(ctx context.Context) error {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.mu.Unlock()

	var first error
	for _, s := range stores {
		if err := s.Save(ctx); err != nil {
			m.logger.WithUserID(s.UserID()).ErrorWithErr("failed to save session", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
