package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaign_payload_cache (
    slot       TEXT PRIMARY KEY,
    payload    BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *Postgres) valid() bool {
	return p != nil && p.DB != nil
}

// LoadPayload returns the payload stored in slot, or ErrCacheMiss.
func (p *Postgres) LoadPayload(ctx context.Context, slot string) ([]byte, error) {
	if !p.valid() {
		return nil, ErrNilPostgres
	}
	var raw []byte
	err := p.DB.QueryRowContext(ctx, `SELECT payload FROM campaign_payload_cache WHERE slot=$1`, slot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return raw, nil
}

// StorePayload replaces the payload of slot.
func (p *Postgres) StorePayload(ctx context.Context, slot string, raw []byte) error {
	if !p.valid() {
		return ErrNilPostgres
	}
	_, err := p.DB.ExecContext(ctx, `INSERT INTO campaign_payload_cache (slot, payload, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (slot) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`, slot, raw)
	if err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	return nil
}

// DeletePayload empties slot.
func (p *Postgres) DeletePayload(ctx context.Context, slot string) error {
	if !p.valid() {
		return ErrNilPostgres
	}
	if _, err := p.DB.ExecContext(ctx, `DELETE FROM campaign_payload_cache WHERE slot=$1`, slot); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	return nil
}

// DefaultPayloadSlot names the row holding the device payload.
const DefaultPayloadSlot = "default"

// PostgresPayloadCache exposes one row of campaign_payload_cache as a
// payload cache slot.
type PostgresPayloadCache struct {
	PG   *Postgres
	Slot string
}

// NewPostgresPayloadCache returns the cache slot named slot, or
// DefaultPayloadSlot when empty.
func NewPostgresPayloadCache(pg *Postgres, slot string) *PostgresPayloadCache {
	if slot == "" {
		slot = DefaultPayloadSlot
	}
	return &PostgresPayloadCache{PG: pg, Slot: slot}
}

func (c *PostgresPayloadCache) Load(ctx context.Context) ([]byte, error) {
	return c.PG.LoadPayload(ctx, c.Slot)
}

func (c *PostgresPayloadCache) Store(ctx context.Context, raw []byte) error {
	return c.PG.StorePayload(ctx, c.Slot, raw)
}

func (c *PostgresPayloadCache) Delete(ctx context.Context) error {
	return c.PG.DeletePayload(ctx, c.Slot)
}
