package rooms

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per room: participant -> joined unix seconds.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "consultation:room"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(room string) string {
	return s.prefix + ":" + room
}

func (s *RedisStore) Join(ctx context.Context, room, participant string, ttl time.Duration) error {
	key := s.key(room)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, participant, strconv.FormatInt(time.Now().Unix(), 10))
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Leave(ctx context.Context, room, participant string) error {
	return s.rdb.HDel(ctx, s.key(room), participant).Err()
}

func (s *RedisStore) Clear(ctx context.Context, room string) error {
	return s.rdb.Del(ctx, s.key(room)).Err()
}

func (s *RedisStore) Participants(ctx context.Context, room string) ([]string, error) {
	out, err := s.rdb.HKeys(ctx, s.key(room)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
