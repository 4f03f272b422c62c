// Package cache keeps the last successfully read on-chain sale record per
// item so reads can fall back to it when the chain is unreachable.
package cache

import (
	"context"
	"sync"

	"github.com/erazemk/kovnica/internal/model"
)

// Sales stores last-known on-chain records. Get returns (nil, nil) when
// nothing is cached for the item.
type Sales interface {
	Get(ctx context.Context, itemID int64) (*model.OnchainSale, error)
	Put(ctx context.Context, sale *model.OnchainSale) error
}

// Memory is an in-process Sales cache. Entries never expire.
type Memory struct {
	mu    sync.RWMutex
	sales map[int64]model.OnchainSale
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{sales: make(map[int64]model.OnchainSale)}
}

func (m *Memory) Get(_ context.Context, itemID int64) (*model.OnchainSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[itemID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) Put(_ context.Context, sale *model.OnchainSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sales[sale.ItemID] = *sale
	return nil
}
