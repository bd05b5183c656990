// Package redis provides a shared, write-through profile cache in front of a
// durable storage.ProfileRepository. Several API replicas can share one
// Redis so a profile built by one replica is served by all of them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// DefaultTTL bounds how long a cached profile lives in Redis. It is longer
// than the staleness window so stale entries are still served while a
// rebuild runs.
const DefaultTTL = 6 * time.Hour

const keyPrefix = "bizdna:profile:"

// ProfileCache implements storage.ProfileRepository. Reads are served from
// Redis when possible and fall through to next; writes go to next first and
// then refresh Redis. Redis failures never fail a call: they are logged and
// the durable repository answers.
type ProfileCache struct {
	client *redis.Client
	next   storage.ProfileRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileCacheFromURL parses redisURL, verifies connectivity and wraps next.
func NewProfileCacheFromURL(redisURL string, next storage.ProfileRepository, ttl time.Duration, logger *zap.Logger) (*ProfileCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewProfileCache(client, next, ttl, logger)
	c.logger.Info("redis: profile cache connected", zap.String("addr", opts.Addr))
	return c, nil
}

// NewProfileCache wraps next with an existing client. ttl <= 0 uses DefaultTTL.
func NewProfileCache(client *redis.Client, next storage.ProfileRepository, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProfileCache{client: client, next: next, ttl: ttl, logger: logger}
}

func profileKey(operatorID, scope string) string {
	return keyPrefix + operatorID + "|" + scope
}

// operatorPattern matches every scope key of operatorID, with glob
// metacharacters in the ID escaped.
func operatorPattern(operatorID string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	for _, r := range operatorID {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString("|*")
	return b.String()
}

// GetProfile returns the cached profile, falling through to the durable
// repository on a miss and back-filling Redis.
func (c *ProfileCache) GetProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error) {
	key := profileKey(operatorID, scope)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p types.BehavioralProfile
		jsonErr := json.Unmarshal(data, &p)
		if jsonErr == nil {
			return &p, nil
		}
		c.logger.Warn("redis: dropping undecodable profile", zap.String("key", key), zap.Error(jsonErr))
		_ = c.client.Del(ctx, key).Err()
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis: profile read failed",
			zap.String("operator", operatorID), zap.String("scope", scope), zap.Error(err))
	}

	p, err := c.next.GetProfile(ctx, operatorID, scope)
	if err != nil {
		return nil, err
	}
	c.set(ctx, p)
	return p, nil
}

// UpsertProfile persists p durably and then refreshes the cache entry.
func (c *ProfileCache) UpsertProfile(ctx context.Context, p *types.BehavioralProfile) error {
	if err := c.next.UpsertProfile(ctx, p); err != nil {
		return err
	}
	c.set(ctx, p)
	return nil
}

// Invalidate drops the cached entry for (operatorID, scope).
func (c *ProfileCache) Invalidate(ctx context.Context, operatorID, scope string) error {
	return c.client.Del(ctx, profileKey(operatorID, scope)).Err()
}

// InvalidateOperator drops every cached scope of operatorID.
func (c *ProfileCache) InvalidateOperator(ctx context.Context, operatorID string) error {
	iter := c.client.Scan(ctx, 0, operatorPattern(operatorID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached profiles: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached profiles: %w", err)
	}
	return nil
}

// DeleteOperatorData removes the operator's durable data and then every
// cached profile. The wrapped repository must implement
// storage.DataPurger.
func (c *ProfileCache) DeleteOperatorData(ctx context.Context, operatorID string) error {
	purger, ok := c.next.(storage.DataPurger)
	if !ok {
		return errors.New("redis: wrapped repository cannot purge operator data")
	}
	if err := purger.DeleteOperatorData(ctx, operatorID); err != nil {
		return err
	}
	return c.InvalidateOperator(ctx, operatorID)
}

// Close closes the Redis connection. The wrapped repository is not closed.
func (c *ProfileCache) Close() error {
	return c.client.Close()
}

func (c *ProfileCache) set(ctx context.Context, p *types.BehavioralProfile) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("redis: failed to encode profile", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, profileKey(p.OperatorID, p.Scope), data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis: profile write failed",
			zap.String("operator", p.OperatorID), zap.String("scope", p.Scope), zap.Error(err))
	}
}

var (
	_ storage.ProfileRepository = (*ProfileCache)(nil)
	_ storage.DataPurger        = (*ProfileCache)(nil)
)
