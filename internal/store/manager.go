package store

import (
	"context"

	"lerian-vectorstore/pkg/vectorstore"
)

// Info is the structural snapshot a Manager exposes for logging and
// conditional behavior. Callers must not mutate a returned Info.
type Info struct {
	BackendType    string
	CollectionName string
	Dimension      int
	Fallback       bool
}

// Manager is a thin lifecycle/metadata holder around a single backend: it
// exposes info, connection status, and symmetric connect/disconnect for
// the factory to hand out (C9).
type Manager struct {
	store    vectorstore.VectorStore
	fallback bool
}

// NewManager wraps store in a Manager. fallback records whether the
// factory substituted the in-process baseline for an unreachable remote
// backend.
func NewManager(store vectorstore.VectorStore, fallback bool) *Manager {
	return &Manager{store: store, fallback: fallback}
}

// Connect delegates to the wrapped backend.
func (m *Manager) Connect(ctx context.Context) error { return m.store.Connect(ctx) }

// Disconnect delegates to the wrapped backend.
func (m *Manager) Disconnect(ctx context.Context) error { return m.store.Disconnect(ctx) }

// IsConnected reflects the underlying backend's connection state.
func (m *Manager) IsConnected() bool { return m.store.IsConnected() }

// Store returns the wrapped VectorStore for callers that need the full
// contract.
func (m *Manager) Store() vectorstore.VectorStore { return m.store }

// GetInfo returns a structural snapshot of the managed backend.
func (m *Manager) GetInfo() Info {
	return Info{
		BackendType:    m.store.BackendType(),
		CollectionName: m.store.CollectionName(),
		Dimension:      m.store.Dimension(),
		Fallback:       m.fallback,
	}
}
