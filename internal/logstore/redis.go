package logstore

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/model"
)

const redisKeyPrefix = "apitel:events:"

// RedisStore keeps one sorted set per category, scored by event timestamp in
// milliseconds. Members are nonce-prefixed so re-delivered duplicates remain
// distinct entries. A category that was never written reads back as an empty
// set, which is exactly the absence-is-empty contract.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, cfg config.RedisCfg) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, &WriteError{Op: "connect", Err: err}
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Append(ctx context.Context, ev model.CanonicalEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return &WriteError{Op: "append", Err: err}
	}
	member := uuid.NewString() + "|" + string(b)
	score := float64(ev.Timestamp.UnixMilli())
	if err := s.client.ZAdd(ctx, redisKeyPrefix+string(ev.EventCategory), redis.Z{
		Score:  score,
		Member: member,
	}).Err(); err != nil {
		return &WriteError{Op: "append", Err: err}
	}
	return nil
}

func (s *RedisStore) QueryRange(ctx context.Context, cat model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error) {
	members, err := s.client.ZRangeByScore(ctx, redisKeyPrefix+string(cat), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEvent, 0, len(members))
	for _, m := range members {
		_, payload, found := strings.Cut(m, "|")
		if !found {
			continue
		}
		var ev model.CanonicalEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue // skip corrupt members rather than failing the query
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
