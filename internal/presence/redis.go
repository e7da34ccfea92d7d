package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"labspace/internal/cache"
)

const (
	redisKeyPrefix   = "labspace:presence:"
	redisSessionsKey = "labspace:presence:sessions"
)

// touchScript rewrites the timestamp half of an existing "status|unixnano" value.
var touchScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then return 0 end
local sep = string.find(v, '|', 1, true)
redis.call('HSET', KEYS[1], ARGV[1], string.sub(v, 1, sep) .. ARGV[2])
return 1
`)

// expireScript marks a field offline only if nobody wrote it since it was read.
var expireScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
  return 1
end
return 0
`)

// pruneScript deletes a field only if nobody wrote it since it was read.
var pruneScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

// RedisStore keeps one hash per session mapping user id to "status|unixnano".
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(c *cache.RedisCache) *RedisStore {
	return &RedisStore{client: c.Client}
}

func sessionKey(sessionID uuid.UUID) string {
	return redisKeyPrefix + sessionID.String()
}

func encodeValue(status Status, at time.Time) string {
	return string(status) + "|" + strconv.FormatInt(at.UnixNano(), 10)
}

func decodeValue(v string) (Status, time.Time, error) {
	status, nanos, ok := strings.Cut(v, "|")
	if !ok {
		return "", time.Time{}, fmt.Errorf("malformed presence value %q", v)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed presence timestamp %q: %w", v, err)
	}
	return Status(status), time.Unix(0, n).UTC(), nil
}

func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(rec.SessionID), rec.UserID.String(), encodeValue(rec.Status, rec.LastSeen))
		pipe.SAdd(ctx, redisSessionsKey, rec.SessionID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) (bool, error) {
	n, err := touchScript.Run(ctx, s.client, []string{sessionKey(sessionID)},
		userID.String(), strconv.FormatInt(at.UnixNano(), 10)).Int()
	if err != nil {
		return false, fmt.Errorf("touch presence: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) List(ctx context.Context, sessionID uuid.UUID) ([]Record, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	out := make([]Record, 0, len(fields))
	for field, value := range fields {
		userID, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		status, at, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{SessionID: sessionID, UserID: userID, Status: status, LastSeen: at})
	}
	return out, nil
}

func (s *RedisStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	members, err := s.client.SMembers(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence sessions: %w", err)
	}

	var changed []uuid.UUID
	for _, member := range members {
		sessionID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		key := sessionKey(sessionID)
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return changed, fmt.Errorf("read presence of %s: %w", sessionID, err)
		}
		if len(fields) == 0 {
			s.client.SRem(ctx, redisSessionsKey, member)
			continue
		}

		touched := false
		for field, value := range fields {
			status, at, err := decodeValue(value)
			if err != nil || status == StatusOffline || !at.Before(cutoff) {
				continue
			}
			n, err := expireScript.Run(ctx, s.client, []string{key}, field, value, encodeValue(StatusOffline, at)).Int()
			if err != nil && !errors.Is(err, redis.Nil) {
				return changed, fmt.Errorf("expire presence: %w", err)
			}
			if n == 1 {
				touched = true
			}
		}
		if touched {
			changed = append(changed, sessionID)
		}
	}
	return changed, nil
}

func (s *RedisStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	members, err := s.client.SMembers(ctx, redisSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list presence sessions: %w", err)
	}

	removed := 0
	for _, member := range members {
		sessionID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		key := sessionKey(sessionID)
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("read presence of %s: %w", sessionID, err)
		}
		for field, value := range fields {
			status, at, err := decodeValue(value)
			if err != nil || status != StatusOffline || !at.Before(cutoff) {
				continue
			}
			n, err := pruneScript.Run(ctx, s.client, []string{key}, field, value).Int()
			if err != nil && !errors.Is(err, redis.Nil) {
				return removed, fmt.Errorf("prune presence: %w", err)
			}
			removed += n
		}
		// The next sweep drops the session from the index once its hash is empty.
	}
	return removed, nil
}
