// Package cache keeps rendered catalog trees in Redis between mutations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/examprep/internal/model"
)

// ErrMiss is returned by Get when nothing is cached.
var ErrMiss = errors.New("cache miss")

const (
	keyPrefix  = "examprep:catalog:"
	versionKey = keyPrefix + "version"
	defaultTTL = 10 * time.Minute
)

// Catalog caches the catalog tree per grade.
type Catalog interface {
	Get(ctx context.Context, grade int) ([]model.Chapter, error)
	Set(ctx context.Context, grade int, chapters []model.Chapter) error
	Invalidate(ctx context.Context) error
}

// Noop caches nothing.
type Noop struct{}

func (Noop) Get(context.Context, int) ([]model.Chapter, error) { return nil, ErrMiss }
func (Noop) Set(context.Context, int, []model.Chapter) error   { return nil }
func (Noop) Invalidate(context.Context) error                  { return nil }

// Redis stores trees under a versioned key. Invalidate bumps the version so
// every grade is dropped at once; stale keys expire on their own.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	slog.Info("connected to redis", "addr", addr, "db", db)
	return &Redis{client: rdb, ttl: defaultTTL}, nil
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) version(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func treeKey(version int64, grade int) string {
	return fmt.Sprintf("%sv%d:grade:%d", keyPrefix, version, grade)
}

func (r *Redis) Get(ctx context.Context, grade int) ([]model.Chapter, error) {
	v, err := r.version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog version: %w", err)
	}
	data, err := r.client.Get(ctx, treeKey(v, grade)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog tree: %w", err)
	}
	var chapters []model.Chapter
	if err := json.Unmarshal(data, &chapters); err != nil {
		return nil, fmt.Errorf("decode catalog tree: %w", err)
	}
	return chapters, nil
}

func (r *Redis) Set(ctx context.Context, grade int, chapters []model.Chapter) error {
	v, err := r.version(ctx)
	if err != nil {
		return fmt.Errorf("read catalog version: %w", err)
	}
	data, err := json.Marshal(chapters)
	if err != nil {
		return fmt.Errorf("encode catalog tree: %w", err)
	}
	return r.client.Set(ctx, treeKey(v, grade), data, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	v, err := r.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return fmt.Errorf("bump catalog version: %w", err)
	}
	slog.Debug("invalidated catalog cache", "version", v)
	return nil
}
