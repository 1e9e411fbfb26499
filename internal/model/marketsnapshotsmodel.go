// Package model holds the Postgres row models behind the durable storage
// backends. Table schemas are documented on each row type; queries are raw
// SQL through the go-zero sqlx connection.
package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// MarketSnapshot is one serialized store blob, keyed by deployment.
//
//	CREATE TABLE IF NOT EXISTS market_snapshots (
//	    app_key    TEXT PRIMARY KEY,
//	    payload    BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type MarketSnapshot struct {
	AppKey    string    `db:"app_key"`
	Payload   []byte    `db:"payload"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MarketSnapshotsModel reads and upserts snapshot rows.
type MarketSnapshotsModel interface {
	FindOne(ctx context.Context, appKey string) (*MarketSnapshot, error)
	Upsert(ctx context.Context, snap *MarketSnapshot) error
}

type defaultMarketSnapshotsModel struct {
	conn sqlx.SqlConn
}

// NewMarketSnapshotsModel returns a model over the market_snapshots table.
func NewMarketSnapshotsModel(conn sqlx.SqlConn) MarketSnapshotsModel {
	return &defaultMarketSnapshotsModel{conn: conn}
}

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = sqlc.ErrNotFound

func (m *defaultMarketSnapshotsModel) FindOne(ctx context.Context, appKey string) (*MarketSnapshot, error) {
	var snap MarketSnapshot
	const q = `SELECT app_key, payload, updated_at FROM market_snapshots WHERE app_key = $1`
	err := m.conn.QueryRowCtx(ctx, &snap, q, appKey)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sqlc.ErrNotFound) || errors.Is(err, sqlx.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot %s: %w", appKey, err)
	}
	return &snap, nil
}

func (m *defaultMarketSnapshotsModel) Upsert(ctx context.Context, snap *MarketSnapshot) error {
	const q = `
		INSERT INTO market_snapshots (app_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (app_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	if _, err := m.conn.ExecCtx(ctx, q, snap.AppKey, snap.Payload); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.AppKey, err)
	}
	return nil
}
