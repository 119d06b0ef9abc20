// Package cache keeps the doctor catalogue in Redis between requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

const DefaultKey = "directory:doctors"

type Doctors struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

func NewDoctors(rdb redis.UniversalClient, key string, ttl time.Duration) *Doctors {
	if key == "" {
		key = DefaultKey
	}
	return &Doctors{rdb: rdb, key: key, ttl: ttl}
}

func (c *Doctors) Doctors(ctx context.Context) ([]model.Doctor, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doctors []model.Doctor
	if err := json.Unmarshal(raw, &doctors); err != nil {
		// A bad entry is treated as a miss and overwritten on the next store.
		return nil, false, nil
	}
	return doctors, true, nil
}

func (c *Doctors) StoreDoctors(ctx context.Context, doctors []model.Doctor) error {
	raw, err := json.Marshal(doctors)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key, raw, c.ttl).Err()
}

func (c *Doctors) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
