package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qteams/logging"

	"github.com/redis/go-redis/v9"
)

// TeamCache keeps the latest snapshot of every team in Redis. It is a
// TeamNotifier, so it is refreshed after each committed mutation.
type TeamCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *logging.Logger
}

func NewTeamCache(client *redis.Client, ttl time.Duration, log *logging.Logger) *TeamCache {
	if log == nil {
		log = logging.Nop()
	}
	return &TeamCache{redis: client, ttl: ttl, log: log}
}

func teamCacheKey(teamID uint) string {
	return fmt.Sprintf("team:%d", teamID)
}

func (c *TeamCache) Store(ctx context.Context, snapshot *TeamSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal team snapshot: %w", err)
	}
	if err := c.redis.Set(ctx, teamCacheKey(snapshot.TeamID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store team snapshot: %w", err)
	}
	return nil
}

// Get returns the cached snapshot. Misses and Redis failures both report
// false; failures are logged.
func (c *TeamCache) Get(ctx context.Context, teamID uint) (*TeamSnapshot, bool) {
	data, err := c.redis.Get(ctx, teamCacheKey(teamID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithTeam(teamID).Warn("failed to read team snapshot", "error", err)
		}
		return nil, false
	}

	var snapshot TeamSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.log.WithTeam(teamID).Warn("failed to decode team snapshot", "error", err)
		return nil, false
	}
	return &snapshot, true
}

func (c *TeamCache) Delete(ctx context.Context, teamID uint) error {
	return c.redis.Del(ctx, teamCacheKey(teamID)).Err()
}

func (c *TeamCache) TeamChanged(ctx context.Context, snapshot *TeamSnapshot) {
	if err := c.Store(ctx, snapshot); err != nil {
		c.log.WithTeam(snapshot.TeamID).Warn("failed to cache team snapshot", "error", err)
	}
}

func (c *TeamCache) TeamDeleted(ctx context.Context, teamID uint) {
	if err := c.Delete(ctx, teamID); err != nil {
		c.log.WithTeam(teamID).Warn("failed to drop cached team snapshot", "error", err)
	}
}
