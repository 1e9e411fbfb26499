package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// PriceTick is one recorded acquisition result, append-only.
//
//	CREATE TABLE IF NOT EXISTS price_ticks (
//	    id           BIGSERIAL PRIMARY KEY,
//	    symbol       TEXT NOT NULL,
//	    price        DOUBLE PRECISION NOT NULL,
//	    price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    volume       DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    high         DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    low          DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    source       TEXT NOT NULL,
//	    demo         BOOLEAN NOT NULL DEFAULT FALSE,
//	    ts_ms        BIGINT NOT NULL
//	);
//	CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol_ts ON price_ticks (symbol, ts_ms DESC);
type PriceTick struct {
	Id          int64   `db:"id"`
	Symbol      string  `db:"symbol"`
	Price       float64 `db:"price"`
	PriceChange float64 `db:"price_change"`
	Volume      float64 `db:"volume"`
	High        float64 `db:"high"`
	Low         float64 `db:"low"`
	Source      string  `db:"source"`
	Demo        bool    `db:"demo"`
	TsMs        int64   `db:"ts_ms"`
}

// PriceTicksModel appends ticks and reads back the most recent one.
type PriceTicksModel interface {
	Insert(ctx context.Context, tick *PriceTick) error
	FindLatest(ctx context.Context, symbol string) (*PriceTick, error)
}

type defaultPriceTicksModel struct {
	conn sqlx.SqlConn
}

// NewPriceTicksModel returns a model over the price_ticks table.
func NewPriceTicksModel(conn sqlx.SqlConn) PriceTicksModel {
	return &defaultPriceTicksModel{conn: conn}
}

func (m *defaultPriceTicksModel) Insert(ctx context.Context, tick *PriceTick) error {
	const q = `
		INSERT INTO price_ticks (symbol, price, price_change, volume, high, low, source, demo, ts_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := m.conn.ExecCtx(ctx, q,
		tick.Symbol, tick.Price, tick.PriceChange, tick.Volume,
		tick.High, tick.Low, tick.Source, tick.Demo, tick.TsMs)
	if err != nil {
		return fmt.Errorf("insert tick %s: %w", tick.Symbol, err)
	}
	return nil
}

func (m *defaultPriceTicksModel) FindLatest(ctx context.Context, symbol string) (*PriceTick, error) {
	var tick PriceTick
	const q = `
		SELECT id, symbol, price, price_change, volume, high, low, source, demo, ts_ms
		FROM price_ticks WHERE symbol = $1 ORDER BY ts_ms DESC LIMIT 1
	`
	err := m.conn.QueryRowCtx(ctx, &tick, q, symbol)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sqlc.ErrNotFound) || errors.Is(err, sqlx.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest tick %s: %w", symbol, err)
	}
	return &tick, nil
}
