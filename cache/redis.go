package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"options-dashboard/interfaces"
)

const quoteKeyPrefix = "options:quote:"

// RedisBackend shares entries between processes. Each entry is a hash
// written in one MULTI/EXEC so readers never see a partial entry; the
// payload is stored verbatim.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a backend on an existing client
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: quoteKeyPrefix,
	}
}

func (r *RedisBackend) key(ticker string) string {
	return r.prefix + ticker
}

func (r *RedisBackend) Get(ctx context.Context, ticker string) (*interfaces.QuoteEntry, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.key(ticker)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get quote from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	payload, ok := fields["payload"]
	if !ok {
		return nil, false, nil
	}
	fetchedAt, err := strconv.ParseInt(fields["fetched_at"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt quote entry for %s: %w", ticker, err)
	}

	return &interfaces.QuoteEntry{
		Ticker:    ticker,
		Payload:   []byte(payload),
		FetchedAt: fetchedAt,
	}, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, entry *interfaces.QuoteEntry, ttl time.Duration) error {
	key := r.key(entry.Ticker)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"payload", string(entry.Payload),
			"fetched_at", strconv.FormatInt(entry.FetchedAt, 10),
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store quote in redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, ticker string) error {
	if err := r.client.Del(ctx, r.key(ticker)).Err(); err != nil {
		return fmt.Errorf("failed to delete quote from redis: %w", err)
	}
	return nil
}
