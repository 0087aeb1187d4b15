package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"podcast-be/pkg/redis"
)

// redisLoginStateStore keeps pending login attempts in Redis, CBOR encoded,
// with the same lifetime as the signed state token.
type redisLoginStateStore struct {
	redis *redis.Client
}

// NewLoginStateStore creates a Redis-backed login state store
func NewLoginStateStore(client *redis.Client) LoginStateStore {
	return &redisLoginStateStore{redis: client}
}

func (s *redisLoginStateStore) Save(ctx context.Context, sessionID string, state *LoginState) error {
	if sessionID == "" {
		return fmt.Errorf("save login state: empty session id")
	}

	payload, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode login state: %w", err)
	}

	if err := s.redis.Set(ctx, s.redis.KeyBuilder.KeyLoginState(sessionID), payload, redis.TTLLoginState); err != nil {
		return fmt.Errorf("save login state: %w", err)
	}
	return nil
}

func (s *redisLoginStateStore) Take(ctx context.Context, sessionID string) (*LoginState, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}

	raw, err := s.redis.GetDel(ctx, s.redis.KeyBuilder.KeyLoginState(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("take login state: %w", err)
	}

	var state LoginState
	if err := cbor.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode login state: %w", err)
	}
	return &state, nil
}
