package dedupe

import (
	"context"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type MemoryDedupe struct {
	log   logger.Logger
	mu    sync.RWMutex
	items map[string]struct{}
}

// for dev(one instance); entries live until Clear, no per-key TTL
func NewInMemoryDedupe(log logger.Logger) *MemoryDedupe {
	return &MemoryDedupe{
		log:   log,
		items: make(map[string]struct{}, 1024),
	}
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	_, ok := m.items[id]
	m.mu.RUnlock()

	return ok, nil
}

func (m *MemoryDedupe) TryMark(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; ok {
		return false, nil
	}

	m.items[id] = struct{}{}
	m.log.Debugf("Marked id=%s", id)

	return true, nil
}

func (m *MemoryDedupe) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	n := len(m.items)
	m.mu.RUnlock()

	return n, nil
}

func (m *MemoryDedupe) Clear(_ context.Context) error {
	m.mu.Lock()
	dropped := len(m.items)
	m.items = make(map[string]struct{}, 1024)
	m.mu.Unlock()

	m.log.Infof("Dedupe set cleared, dropped=%d entries", dropped)

	return nil
}

var _ Deduper = (*MemoryDedupe)(nil)
