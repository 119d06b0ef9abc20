package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList is a Redis deny list of access token ids. Entries live
// until the token would have expired anyway.
type RevocationList struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRevocationList(rdb redis.UniversalClient, prefix string) *RevocationList {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "revoked"
	}
	return &RevocationList{rdb: rdb, prefix: prefix}
}

func (l *RevocationList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return nil
	}
	return l.rdb.Set(ctx, l.key(jti), "1", ttl).Err()
}

func (l *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := l.rdb.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RevocationList) key(jti string) string {
	return l.prefix + ":" + jti
}
