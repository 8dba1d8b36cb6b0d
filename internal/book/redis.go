package book

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces book hashes in the redis keyspace. Each hash maps a
// UCI move to its weight; the field line for the start position is "start".
const keyPrefix = "book:"

const lookupTimeout = 2 * time.Second

// RedisSource serves book lookups from a redis hash per position, for books
// too large to hold in memory or shared between bot instances.
type RedisSource struct {
	rdb *redis.Client
}

// NewRedisSource connects to redis using a connection URL.
func NewRedisSource(redisURL string) (*RedisSource, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSource{rdb: rdb}, nil
}

// newRedisSourceFromClient wraps an existing client, for tests.
func newRedisSourceFromClient(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

// Lookup fetches the weighted continuations stored for the move line.
func (r *RedisSource) Lookup(moveLine string) ([]Entry, error) {
	if moveLine == "" {
		moveLine = "start"
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	fields, err := r.rdb.HGetAll(ctx, keyPrefix+moveLine).Result()
	if err != nil {
		return nil, fmt.Errorf("book hash %q: %w", moveLine, err)
	}

	entries := make([]Entry, 0, len(fields))
	for move, weight := range fields {
		w, err := strconv.Atoi(weight)
		if err != nil {
			continue // skip malformed weights rather than failing the lookup
		}
		entries = append(entries, Entry{Move: move, Weight: w})
	}
	return entries, nil
}

// Close closes the redis connection.
func (r *RedisSource) Close() error {
	return r.rdb.Close()
}
