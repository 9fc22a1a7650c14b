package variant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex stores one sorted set per source, scored by variant width with
// "width:height" members.
type RedisIndex struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisIndex keeps index keys for ttl after the last write; zero keeps
// them forever.
func NewRedisIndex(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisIndex, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelvault:variants"
	}
	return &RedisIndex{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (r *RedisIndex) key(sourceKey string) string {
	return r.keyPrefix + ":" + sourceKey
}

func (r *RedisIndex) Add(ctx context.Context, sourceKey string, e Entry) error {
	key := r.key(sourceKey)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, strconv.Itoa(e.Width), strconv.Itoa(e.Width))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Width), Member: member(e)})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index variant %dx%d: %w", e.Width, e.Height, err)
	}
	return nil
}

// Smallest scans members from minWidth upwards since heights are not
// scored.
func (r *RedisIndex) Smallest(ctx context.Context, sourceKey string, minWidth, minHeight int) (Entry, bool, error) {
	members, err := r.client.ZRangeByScore(ctx, r.key(sourceKey), &redis.ZRangeBy{
		Min: strconv.Itoa(minWidth),
		Max: "+inf",
	}).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("query variants: %w", err)
	}
	entries, err := parseMembers(members)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := firstFitting(entries, minWidth, minHeight)
	return e, ok, nil
}

func (r *RedisIndex) List(ctx context.Context, sourceKey string) ([]Entry, error) {
	members, err := r.client.ZRange(ctx, r.key(sourceKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return parseMembers(members)
}

func parseMembers(members []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		e, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisIndex) Delete(ctx context.Context, sourceKey string) error {
	if err := r.client.Del(ctx, r.key(sourceKey)).Err(); err != nil {
		return fmt.Errorf("delete variants: %w", err)
	}
	return nil
}

func member(e Entry) string {
	return strconv.Itoa(e.Width) + ":" + strconv.Itoa(e.Height)
}

func parseMember(m string) (Entry, error) {
	w, h, ok := strings.Cut(m, ":")
	if !ok {
		return Entry{}, fmt.Errorf("invalid variant member %q", m)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid variant member %q: %w", m, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid variant member %q: %w", m, err)
	}
	return Entry{Width: width, Height: height}, nil
}
