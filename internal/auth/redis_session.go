package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auction-house/internal/auctionerrors"
)

// rotateLua swaps the current refresh hash for a new one and records the old
// hash as redeemed. The hash it replaced stays answerable as 'recent' for the
// grace window; presenting any other redeemed hash revokes the session.
//
// ARGV: old hash, new hash, expires_at ms, ttl ms, now ms, grace ms.
const rotateLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'missing'
end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then
    return 'revoked'
end
if redis.call('HGET', KEYS[1], 'refresh') == ARGV[1] then
    redis.call('HSET', KEYS[1], 'refresh', ARGV[2], 'expires_at', ARGV[3], 'prev', ARGV[1], 'rotated_at', ARGV[5])
    redis.call('SADD', KEYS[2], ARGV[1])
    redis.call('PEXPIRE', KEYS[1], ARGV[4])
    redis.call('PEXPIRE', KEYS[2], ARGV[4])
    return 'ok'
end
if redis.call('HGET', KEYS[1], 'prev') == ARGV[1] then
    local rotated = tonumber(redis.call('HGET', KEYS[1], 'rotated_at') or '0')
    if tonumber(ARGV[5]) < rotated + tonumber(ARGV[6]) then
        return 'recent'
    end
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
    redis.call('HSET', KEYS[1], 'revoked', '1')
    return 'reused'
end
return 'invalid'
`

// RedisSessionStore keeps sessions in Redis hashes so every instance sees the
// same rotation state. Keys expire with the refresh TTL.
type RedisSessionStore struct {
	rdb      *redis.Client
	rotateSc *redis.Script
	now      func() time.Time
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a store on rdb.
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		rdb:      rdb,
		rotateSc: redis.NewScript(rotateLua),
		now:      time.Now,
	}
}

func sessionKey(id string) string  { return "session:" + id }
func redeemedKey(id string) string { return "session:" + id + ":redeemed" }

func (r *RedisSessionStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func (r *RedisSessionStore) Create(ctx context.Context, s Session) error {
	key := sessionKey(s.ID)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"user_id", s.UserID,
			"refresh", s.RefreshHash,
			"expires_at", s.ExpiresAt.UnixMilli(),
			"revoked", boolFlag(s.Revoked),
		)
		p.PExpire(ctx, key, r.ttl(s.ExpiresAt))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: create session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	fields, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("redis: get session %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Session{}, fmt.Errorf("get session %s: %w", id, auctionerrors.ErrSessionNotFound)
	}

	ms, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("redis: session %s has a corrupt expiry: %w", id, err)
	}
	sess := Session{
		ID:           id,
		UserID:       fields["user_id"],
		RefreshHash:  fields["refresh"],
		PreviousHash: fields["prev"],
		ExpiresAt:    time.UnixMilli(ms).UTC(),
		Revoked:      fields["revoked"] == "1",
	}
	if raw := fields["rotated_at"]; raw != "" {
		rotated, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Session{}, fmt.Errorf("redis: session %s has a corrupt rotation time: %w", id, err)
		}
		sess.RotatedAt = time.UnixMilli(rotated).UTC()
	}
	return sess, nil
}

func (r *RedisSessionStore) Rotate(ctx context.Context, id string, rot Rotation) error {
	keys := []string{sessionKey(id), redeemedKey(id)}
	res, err := r.rotateSc.Run(ctx, r.rdb, keys,
		rot.OldHash, rot.NewHash, rot.ExpiresAt.UnixMilli(), r.ttl(rot.ExpiresAt).Milliseconds(),
		rot.At.UnixMilli(), rot.Grace.Milliseconds(),
	).Text()
	if err != nil {
		return fmt.Errorf("redis: rotate session %s: %w", id, err)
	}

	switch res {
	case "ok":
		return nil
	case "recent":
		return fmt.Errorf("rotate session %s: %w", id, errJustRotated)
	case "missing":
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrSessionNotFound)
	case "revoked":
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrSessionRevoked)
	case "reused":
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrRefreshTokenReused)
	case "invalid":
		return fmt.Errorf("rotate session %s: %w", id, auctionerrors.ErrTokenInvalid)
	default:
		return fmt.Errorf("redis: rotate session %s: unexpected reply %q", id, res)
	}
}

func (r *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	// HSET on a missing key would create a stray record, so check first.
	n, err := r.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis: revoke session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("revoke session %s: %w", id, auctionerrors.ErrSessionNotFound)
	}
	if err := r.rdb.HSet(ctx, sessionKey(id), "revoked", "1").Err(); err != nil {
		return fmt.Errorf("redis: revoke session %s: %w", id, err)
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
