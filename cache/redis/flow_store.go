package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/redis/go-redis/v9"
)

// FlowStore keeps login flow states in Redis so that any server instance
// can resume a flow.
type FlowStore struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

var _ domain.FlowStore = (*FlowStore)(nil)

// NewFlowStore creates a new FlowStore.
func NewFlowStore(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *FlowStore {
	return &FlowStore{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (s *FlowStore) key(id string) string {
	return fmt.Sprintf("%s:flow:%s", s.prefix, id)
}

func (s *FlowStore) SaveFlow(ctx context.Context, flow *domain.FlowState, ttl time.Duration) error {
	if flow.ID == "" {
		return errors.New("flow id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(flow.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow state: %w", err)
	}

	return nil
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*domain.FlowState, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("flow %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow state: %w", err)
	}

	var flow domain.FlowState
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow state: %w", err)
	}

	return &flow, nil
}

func (s *FlowStore) DeleteFlow(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete flow state: %w", err)
	}

	return nil
}
