package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/repromitra/telehealth/libs/config"
)

// NewFromEnv returns nil when REDIS_ADDR is unset so callers can fall back
// to in-process behaviour.
func NewFromEnv() (*redis.Client, error) {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, nil
	}
	dbIndex, err := config.Int("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	if dbIndex < 0 {
		return nil, errors.New("REDIS_DB must be >= 0")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       dbIndex,
	}), nil
}

func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
