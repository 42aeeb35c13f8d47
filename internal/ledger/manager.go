package ledger

import (
	"context"
	"sync"

	"github.com/kalpe/backend/internal/config"
)

// Manager hands out one Engine per user, constructed lazily on first
// access and kept for the lifetime of the process.
type Manager struct {
	mu      sync.Mutex
	store   Store
	cfg     *config.LedgerConfig
	engines map[string]*Engine
}

func NewManager(store Store, cfg *config.LedgerConfig) *Manager {
	return &Manager{
		store:   store,
		cfg:     cfg,
		engines: make(map[string]*Engine),
	}
}

// ForUser returns the engine owning userID's ledger, seeding it from the
// store on first access.
func (m *Manager) ForUser(ctx context.Context, userID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if engine, ok := m.engines[userID]; ok {
		return engine
	}
	engine := newEngine(ctx, m.store, m.cfg, userID)
	m.engines[userID] = engine
	return engine
}

// Currency reports the display currency the ledger operates in.
func (m *Manager) Currency() string {
	return m.cfg.Currency
}
