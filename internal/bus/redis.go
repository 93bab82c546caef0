// internal/bus/redis.go
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamzrod/modbus-bridge/internal/model"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// RedisPublisher pushes reading batches onto a Redis list and keeps a
// per-controller health key, publishing transitions on a channel.
type RedisPublisher struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig is the bus endpoint configuration.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisPublisher returns a connected publisher, validated with PING.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("bus: redis addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	prefix := strings.Trim(cfg.KeyPrefix, ":")
	if prefix == "" {
		prefix = "bridge"
	}

	return &RedisPublisher{client: client, keyPrefix: prefix}, nil
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) key(segments ...string) string {
	return p.keyPrefix + ":" + strings.Join(segments, ":")
}

// PublishBatch enqueues one batch as JSON on the readings list.
func (p *RedisPublisher) PublishBatch(ctx context.Context, batch model.ReadingBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("bus: marshal batch: %w", err)
	}
	return p.client.RPush(ctx, p.key("readings"), payload).Err()
}

// PublishHealth stores the controller's health state and announces the
// transition on the health channel.
func (p *RedisPublisher) PublishHealth(ctx context.Context, msg HealthMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal health: %w", err)
	}

	key := p.key("health", fmt.Sprintf("%d", msg.ControllerID))
	if err := p.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return err
	}
	return p.client.Publish(ctx, p.key("health"), payload).Err()
}
