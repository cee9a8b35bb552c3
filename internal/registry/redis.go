package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the redis-backed registry.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis reads secret-to-match mappings maintained in redis by the match
// coordinator. Keys are KeyPrefix + secret with the match id as value; the
// coordinator deletes them when a match ends, so no caching happens here:
// a stale positive would misattribute events to an ended match.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client, prefix: cfg.KeyPrefix}, nil
}

// LookupMatchBySecret implements Lookup.
func (r *Redis) LookupMatchBySecret(ctx context.Context, secret string) (string, error) {
	matchID, err := r.client.Get(ctx, r.prefix+secret).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up log secret: %w", err)
	}
	if matchID == "" {
		return "", ErrNotFound
	}
	return matchID, nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
