package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

// RedisConnection owns the shared Redis client.
type RedisConnection struct {
	Client *redis.Client
}

// Shutdown closes the client.
func (c *RedisConnection) Shutdown() error {
	return c.Client.Close()
}

// PostgresConnection owns the Postgres pool.
type PostgresConnection struct {
	Pool *pgxpool.Pool
}

// Shutdown closes the pool.
func (c *PostgresConnection) Shutdown() error {
	c.Pool.Close()

	return nil
}

// RedisPackage provides the Redis connection.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisConnection, error) {
		opts := do.MustInvoke[*Options](i)

		client := redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		})

		return &RedisConnection{Client: client}, nil
	})
}

// PostgresPackage provides the Postgres connection pool.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresConnection, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return nil, errors.New("database url is not configured")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		return &PostgresConnection{Pool: pool}, nil
	})
}
