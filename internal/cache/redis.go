package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"

	"crossway/internal/domain"
)

// RedisCache mirrors published frames for out-of-process renderers.
// The simulator only writes here; it never restores state from it.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "crossway:",
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, c.key(key), value, ttl).Err()
	if err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
		return err
	}
	c.logger.Debug("cache set", "key", key, "size_bytes", len(value), "ttl", ttl, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) SetJSONCompressed(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return c.Set(ctx, key, compressed, ttl)
}

func (c *RedisCache) GetJSONCompressed(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	raw, err := gzipDecompress(data)
	if err != nil {
		return false, fmt.Errorf("decompress: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	return true, nil
}

type frameNotice struct {
	RunID string `json:"runId"`
	Tick  uint64 `json:"tick"`
	Key   string `json:"key"`
}

// MirrorFrame stores the frame under the latest and per-run keys and
// notifies subscribers of the frames channel.
func (c *RedisCache) MirrorFrame(ctx context.Context, runID string, frame domain.Frame) error {
	if err := c.SetJSONCompressed(ctx, KeyFrameLatest, frame, c.ttl); err != nil {
		return err
	}
	if err := c.SetJSONCompressed(ctx, KeyRunFrame(runID), frame, c.ttl); err != nil {
		return err
	}

	notice, err := json.Marshal(frameNotice{RunID: runID, Tick: frame.Tick, Key: c.key(KeyRunFrame(runID))})
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.client.Publish(ctx, c.key(ChannelFrames), notice).Err(); err != nil {
		return fmt.Errorf("publish frame notice: %w", err)
	}
	return nil
}

// LatestFrame reads back the most recently mirrored frame.
func (c *RedisCache) LatestFrame(ctx context.Context) (domain.Frame, bool, error) {
	var f domain.Frame
	ok, err := c.GetJSONCompressed(ctx, KeyFrameLatest, &f)
	return f, ok, err
}

// RecordRun stores run metadata so readers can tell runs apart.
func (c *RedisCache) RecordRun(ctx context.Context, runID string, meta map[string]string) error {
	if err := c.client.HSet(ctx, c.key(KeyRunMeta(runID)), meta).Err(); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return c.client.Expire(ctx, c.key(KeyRunMeta(runID)), 24*time.Hour).Err()
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
