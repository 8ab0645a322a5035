package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// inFlight marks a key whose first request has not finished yet.
const inFlight = "in-flight"

// ErrInFlight is returned by Reserve while another request holds the key.
var ErrInFlight = errors.New("idempotency key is in flight")

// IdempotencyRecord is the response replayed for a repeated key.
type IdempotencyRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// IdempotencyStore reserves keys before the handler runs and stores the
// finished response under the same key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string, ttl time.Duration) (*IdempotencyRecord, error)
	Complete(ctx context.Context, scope, key string, record IdempotencyRecord, ttl time.Duration) error
	Release(ctx context.Context, scope, key string) error
}

// Reserve claims scope/key for ttl. It returns (nil, nil) when the caller
// won the key, the stored record when a previous request completed, and
// ErrInFlight when one is still running.
func (c *Client) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (*IdempotencyRecord, error) {
	if c == nil || c.cmd == nil {
		return nil, errNotConnected
	}
	k := Key(KindIdempotency, scope, key)
	won, err := c.cmd.SetNX(ctx, k, inFlight, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", k, err)
	}
	if won {
		return nil, nil
	}

	stored, err := c.cmd.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; treat as still contended.
		return nil, ErrInFlight
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", k, err)
	case stored == inFlight:
		return nil, ErrInFlight
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return &record, nil
}

// Complete overwrites the reservation with the finished response.
func (c *Client) Complete(ctx context.Context, scope, key string, record IdempotencyRecord, ttl time.Duration) error {
	if c == nil || c.cmd == nil {
		return errNotConnected
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	return c.cmd.Set(ctx, Key(KindIdempotency, scope, key), payload, ttl).Err()
}

// Release drops a reservation so the client may retry with the same key.
func (c *Client) Release(ctx context.Context, scope, key string) error {
	if c == nil || c.cmd == nil {
		return errNotConnected
	}
	return c.cmd.Del(ctx, Key(KindIdempotency, scope, key)).Err()
}
