package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cropwise/auth-service/internal/refresh"
)

// ErrRedisUnavailable wraps transport failures so callers can tell an
// unreachable backend apart from a genuine miss.
var ErrRedisUnavailable = errors.New("refresh store redis unavailable")

// Redis keeps refresh tokens in Redis. Each record lives under its own key
// with a TTL matching its expiry, and a per-principal set indexes the hashes
// so RevokeAllForPrincipal does not need a scan. Revoked records stay in
// place until they expire naturally; a vanished key reads as a miss, which
// is the safe direction.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing client. prefix namespaces all keys and
// defaults to "rt".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "rt"
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) recordKey(tokenHash string) string {
	return s.prefix + ":tok:" + tokenHash
}

func (s *Redis) principalKey(principalID string) string {
	return s.prefix + ":principal:" + principalID
}

func (s *Redis) Insert(ctx context.Context, rec *refresh.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode refresh record: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return errors.New("refresh record already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.TokenHash), data, ttl)
	pipe.SAdd(ctx, s.principalKey(rec.PrincipalID), rec.TokenHash)
	pipe.Expire(ctx, s.principalKey(rec.PrincipalID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Redis) FindByHash(ctx context.Context, tokenHash string) (*refresh.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec := &refresh.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode refresh record: %w", err)
	}
	return rec, nil
}

func (s *Redis) Revoke(ctx context.Context, tokenHash string, at time.Time, reason string) error {
	key := s.recordKey(tokenHash)
	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec := &refresh.Record{}
			if err := json.Unmarshal(data, rec); err != nil {
				return fmt.Errorf("decode refresh record: %w", err)
			}
			if rec.IsRevoked {
				return nil
			}
			rec.IsRevoked = true
			rec.RevokedAt = &at
			rec.RevokedReason = reason

			updated, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode refresh record: %w", err)
			}
			ttl := time.Until(rec.ExpiresAt)
			if ttl <= 0 {
				ttl = time.Second
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return refresh.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: revoke retries exhausted", ErrRedisUnavailable)
}

func (s *Redis) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time, reason string) (int, error) {
	hashes, err := s.client.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	n := 0
	for _, hash := range hashes {
		rec, err := s.FindByHash(ctx, hash)
		if errors.Is(err, refresh.ErrNotFound) {
			// Record expired out from under the index; drop the stale entry.
			s.client.SRem(ctx, s.principalKey(principalID), hash)
			continue
		}
		if err != nil {
			return n, err
		}
		if rec.IsRevoked {
			continue
		}
		if err := s.Revoke(ctx, hash, at, reason); err != nil {
			if errors.Is(err, refresh.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}
