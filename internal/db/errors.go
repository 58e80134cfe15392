package db

import "errors"

var (
	// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
	ErrNilRedisStore = errors.New("redis store is nil")
	// ErrNilPostgres is returned when a Postgres pointer is nil or uninitialized.
	ErrNilPostgres = errors.New("postgres is nil")
	// ErrCacheMiss is returned when the payload cache slot is empty.
	ErrCacheMiss = errors.New("payload cache miss")
)
