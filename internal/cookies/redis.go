package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "presencectl:cookies"

// RedisStore keeps the JSON-encoded jar under a single redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// OpenRedisStore parses a redis URL and verifies the connection.
func OpenRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStore(client, key), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context) (*Jar, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = ErrNotFound
		}
		return nil, fmt.Errorf("%w (redis %s): %w", ErrCookieLoad, s.key, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w (redis %s): %w", ErrCookieLoad, s.key, err)
	}
	return NewJar(rec.Cookies...), nil
}

func (s *RedisStore) Save(ctx context.Context, jar *Jar) error {
	if jar == nil {
		return fmt.Errorf("%w: nil jar", ErrCookieSave)
	}
	data, err := json.Marshal(record{Version: recordVersion, Cookies: jar.Cookies()})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCookieSave, err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w (redis %s): %w", ErrCookieSave, s.key, err)
	}
	return nil
}
