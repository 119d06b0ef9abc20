package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(phone string) string {
	return s.prefix + ":" + phone
}

func (s *RedisStore) Save(ctx context.Context, phone, hash string, ttl time.Duration) error {
	key := s.key(phone)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "hash", hash, "attempts", 0)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// claimScript increments attempts only on a live key, so an expired code is
// never recreated without a TTL.
var claimScript = redis.NewScript(`
local hash = redis.call("HGET", KEYS[1], "hash")
if not hash then
  return false
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {hash, n}
`)

func (s *RedisStore) Claim(ctx context.Context, phone string) (string, int, error) {
	res, err := claimScript.Run(ctx, s.rdb, []string{s.key(phone)}).Slice()
	if errors.Is(err, redis.Nil) {
		return "", 0, ErrNoPendingCode
	}
	if err != nil {
		return "", 0, err
	}
	if len(res) != 2 {
		return "", 0, fmt.Errorf("otp claim: unexpected reply %v", res)
	}
	hash, _ := res[0].(string)
	n, _ := res[1].(int64)
	if hash == "" {
		return "", 0, ErrNoPendingCode
	}
	return hash, int(n), nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.rdb.Del(ctx, s.key(phone)).Err()
}
