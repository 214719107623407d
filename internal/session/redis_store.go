package session

import (
	"context"
	"errors"
	"time"

	"liveflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session gates in Redis. Each write resets the key TTL;
// reads leave it untouched.
type RedisStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Redis: rdb, TTL: ttl}
}

func (s *RedisStore) SaveAgeConfirmation(ctx context.Context, sid string) error {
	return s.Redis.Set(ctx, ageKey(sid), ageConfirmedValue, s.TTL).Err()
}

func (s *RedisStore) IsAgeConfirmed(ctx context.Context, sid string) (bool, error) {
	v, err := s.Redis.Get(ctx, ageKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == ageConfirmedValue, nil
}

func (s *RedisStore) SavePreferences(ctx context.Context, sid string, prefs models.UserPreferences) error {
	data, err := encodePreferences(prefs)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, prefsKey(sid), data, s.TTL).Err()
}

func (s *RedisStore) LoadPreferences(ctx context.Context, sid string) (*models.UserPreferences, error) {
	raw, err := s.Redis.Get(ctx, prefsKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePreferences(sid, raw), nil
}

func (s *RedisStore) End(ctx context.Context, sid string) error {
	return s.Redis.Del(ctx, ageKey(sid), prefsKey(sid)).Err()
}
