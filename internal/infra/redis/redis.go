package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/myglasscase/glasscase/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultHost = "localhost"
	defaultPort = 6379

	connectTimeout = 10 * time.Second
	pingTimeout    = time.Second
)

// NewClient connects to Redis and fails fast when the first PING does not answer.
// Callers treat the error as "run without Redis".
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := Options(cfg)
	rdb := redis.NewClient(opts)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(connectCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	return rdb, nil
}

// Options maps the app config onto go-redis options. Share lookups sit on the
// public request path, so reads and writes get short deadlines.
func Options(cfg config.RedisConfig) *redis.Options {
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	return &redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Ping is the readiness check used by /health.
func Ping(ctx context.Context, rdb *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}
