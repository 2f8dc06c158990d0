package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions are the connection settings read from config.
type ClientOptions struct {
	Addr     string
	Username string
	Password string
	PoolSize int
	Timeout  time.Duration
}

func (o ClientOptions) redisOptions() *redis.Options {
	opts := &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		PoolSize:     o.PoolSize,
		MinIdleConns: 1,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
		opts.WriteTimeout = 2 * time.Second
	}
	return opts
}

// NewRedisClient connects to the lock and event stream server and pings it.
func NewRedisClient(ctx context.Context, o ClientOptions) (*redis.Client, error) {
	rdb := redis.NewClient(o.redisOptions())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", o.Addr, err)
	}

	return rdb, nil
}
