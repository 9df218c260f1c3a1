package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelhub/review-api/pkg/config"
)

const connectTimeout = 5 * time.Second

// NewRedis dials Redis and verifies the connection before returning it.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

// Options maps the service configuration onto go-redis options.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	}
}

// Pinger adapts a Redis client to the readiness check interface.
type Pinger struct {
	Client *redis.Client
}

// PingContext reports whether Redis answers PING.
func (p Pinger) PingContext(ctx context.Context) error {
	if p.Client == nil {
		return fmt.Errorf("redis client not configured")
	}
	return p.Client.Ping(ctx).Err()
}
