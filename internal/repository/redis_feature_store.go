package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	pkgredis "RiskPulse/pkg/redis"
)

// casScript advances the last-applied pair only when the incoming event is
// at least as fresh as the stored one. A stale writer (replayed or late
// consumer) loses this write but keeps its commutative increments.
var casScript = goredis.NewScript(`
local stored = redis.call('HGET', KEYS[1], ARGV[1])
if (not stored) or tonumber(ARGV[2]) >= tonumber(stored) then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
  return 1
end
return 0
`)

// RedisFeatureStore keeps one hash per user. Counters are per-field atomic
// increments so concurrent writers merge instead of clobbering; gauges are
// plain sets owned by the single partition owner; the ordering pair goes
// through the compare-and-set script above.
type RedisFeatureStore struct {
	client *pkgredis.Client
}

// NewRedisFeatureStore creates the store on an established client.
func NewRedisFeatureStore(client *pkgredis.Client) drepo.FeatureStore {
	return &RedisFeatureStore{client: client}
}

func (s *RedisFeatureStore) key(userID string) string {
	return s.client.Key("features", "user", userID)
}

// Get reads the full hash. ErrNotFound covers both never-seen and
// TTL-expired users; the caller treats them identically as cold.
func (s *RedisFeatureStore) Get(ctx context.Context, userID string) (*models.FeatureRecord, error) {
	fields, err := s.client.RDB().HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, drepo.ErrNotFound
	}
	return models.FeatureRecordFromFields(userID, fields)
}

// ApplyDelta applies one atomic partial update. Increments and gauge sets
// always land; the last-applied pair only advances if the delta is fresher
// than the stored record, otherwise ErrConflict.
func (s *RedisFeatureStore) ApplyDelta(ctx context.Context, userID string, d *models.FeatureDelta) error {
	key := s.key(userID)

	pipe := s.client.RDB().Pipeline()
	for field, inc := range d.Inc {
		pipe.HIncrByFloat(ctx, key, field, inc)
	}
	if len(d.Set) > 0 {
		flat := make([]interface{}, 0, len(d.Set)*2)
		for field, v := range d.Set {
			flat = append(flat, field, v)
		}
		pipe.HSet(ctx, key, flat...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply delta %s: %w", userID, err)
	}

	if d.LastEventID == "" {
		return nil
	}
	ok, err := casScript.Run(ctx, s.client.RDB(), []string{key},
		models.FieldLastEventTS, strconv.FormatInt(d.LastEventTS.UnixMilli(), 10),
		models.FieldLastEventID, d.LastEventID,
	).Int64()
	if err != nil {
		return fmt.Errorf("cas %s: %w", userID, err)
	}
	if ok == 0 {
		return drepo.ErrConflict
	}
	return nil
}

// TouchTTL refreshes the key's expiry.
func (s *RedisFeatureStore) TouchTTL(ctx context.Context, userID string, ttl time.Duration) error {
	if err := s.client.RDB().Expire(ctx, s.key(userID), ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", userID, err)
	}
	return nil
}

func (s *RedisFeatureStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *RedisFeatureStore) Close() error {
	return s.client.Close()
}
