package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys in a shared redis
const DefaultRedisPrefix = "feedsorter:cache:"

// RedisStore keeps cache entries in redis.
// Each source has a record key holding the JSON record and a sibling key holding its write time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store on top of an existing client
func NewRedisStore(client *redis.Client, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	o := buildOptions(opts)
	return &RedisStore{client: client, prefix: prefix, now: o.now}
}

// DialRedis connects to redis and checks the connection
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrStoreUnavailable, addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + id
}

func (s *RedisStore) writtenKey(id string) string {
	return s.prefix + id + ":written_at"
}

// Get returns the cached entry for a source
func (s *RedisStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	vals, err := s.client.MGet(ctx, s.recordKey(id), s.writtenKey(id)).Result()
	if err != nil {
		slog.Warn("redis cache read error", "error", err, "source", truncate(id, 50))
		return Entry{}, false, fmt.Errorf("%w: read entry: %w", ErrStoreUnavailable, err)
	}

	raw, ok := vals[0].(string)
	if !ok {
		return Entry{}, false, nil
	}

	entry, err := DecodeRecord([]byte(raw))
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if written, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(written, 10, 64); err == nil {
			entry.WrittenAt = time.UnixMilli(ms).UTC()
		}
	}
	return entry, true, nil
}

// Put writes the record and its write time atomically
func (s *RedisStore) Put(ctx context.Context, id string, entry Entry) error {
	now := s.now()
	entry.WrittenAt = now

	data, err := EncodeRecord(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(id), data, 0)
		pipe.Set(ctx, s.writtenKey(id), strconv.FormatInt(now.UnixMilli(), 10), 0)
		return nil
	})
	if err != nil {
		slog.Warn("redis cache write error", "error", err, "source", truncate(id, 50))
		return fmt.Errorf("%w: write entry: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Touch refreshes the write time of an existing entry. Missing entries are left absent.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	err := s.client.SetXX(ctx, s.writtenKey(id), strconv.FormatInt(s.now().UnixMilli(), 10), 0).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: touch entry: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Age returns how long ago the entry for a source was last written
func (s *RedisStore) Age(ctx context.Context, id string) (time.Duration, bool, error) {
	written, err := s.client.Get(ctx, s.writtenKey(id)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: read age: %w", ErrStoreUnavailable, err)
	}
	return s.now().Sub(time.UnixMilli(written)), true, nil
}

// Clear removes every key under the store prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// Stats scans the store prefix. Undecodable records are skipped.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	keys, err := s.keys(ctx)
	if err != nil {
		return stats, err
	}

	for _, key := range keys {
		if strings.HasSuffix(key, ":written_at") {
			ms, err := s.client.Get(ctx, key).Int64()
			if err != nil {
				continue
			}
			written := time.UnixMilli(ms).UTC()
			if stats.OldestWrite.IsZero() || written.Before(stats.OldestWrite) {
				stats.OldestWrite = written
			}
			continue
		}

		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		entry, err := DecodeRecord(raw)
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Items += len(entry.Items)
	}
	return stats, nil
}

func (s *RedisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
