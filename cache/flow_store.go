package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/shadow-oauth/domain"
)

// MemoryFlowStore keeps login flow states in memory until their TTL elapses.
type MemoryFlowStore struct {
	cache *ttlcache.Cache[string, domain.FlowState]
}

var _ domain.FlowStore = (*MemoryFlowStore)(nil)

// NewMemoryFlowStore creates a new MemoryFlowStore.
func NewMemoryFlowStore(defaultTTL time.Duration) *MemoryFlowStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, domain.FlowState](defaultTTL),
	)

	go cache.Start()

	return &MemoryFlowStore{cache: cache}
}

func (s *MemoryFlowStore) SaveFlow(_ context.Context, flow *domain.FlowState, ttl time.Duration) error {
	if flow.ID == "" {
		return fmt.Errorf("flow id is required")
	}
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.cache.Set(flow.ID, *flow, ttl)

	return nil
}

func (s *MemoryFlowStore) GetFlow(_ context.Context, id string) (*domain.FlowState, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, fmt.Errorf("flow %s: %w", id, domain.ErrNotFound)
	}

	flow := item.Value()

	return &flow, nil
}

func (s *MemoryFlowStore) DeleteFlow(_ context.Context, id string) error {
	s.cache.Delete(id)

	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryFlowStore) Close() error {
	s.cache.Stop()

	return nil
}
