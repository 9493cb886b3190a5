package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	cfg    Config
	saved  bool
	Saves  int
	Erases int
}

// NewMemory creates a Memory store, optionally pre-loaded.
func NewMemory(initial *Config) *Memory {
	m := &Memory{}
	if initial != nil {
		m.cfg = *initial
		m.saved = true
	}
	return m
}

func (m *Memory) Load(ctx context.Context) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return Config{}, ErrNotFound
	}
	return m.cfg, nil
}

func (m *Memory) Save(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.saved = true
	m.Saves++
	return nil
}

func (m *Memory) Erase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = Config{}
	m.saved = false
	m.Erases++
	return nil
}

// Erased reports whether the last operation left the store empty.
func (m *Memory) Erased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.saved
}
