package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // register postgres driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"marketcal/internal/model"
)

// PostgresStore keeps the snapshot blob in a single row keyed by app key, so
// several deployments can share one database.
type PostgresStore struct {
	snapshots model.MarketSnapshotsModel
	appKey    string
}

// NewPostgresStore opens a connection for the given DSN.
func NewPostgresStore(dsn, appKey string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("storage: postgres dsn is empty")
	}
	conn := sqlx.NewSqlConn("postgres", dsn)
	return NewPostgresStoreWithConn(conn, appKey), nil
}

// NewPostgresStoreWithConn wraps an existing connection, for tests.
func NewPostgresStoreWithConn(conn sqlx.SqlConn, appKey string) *PostgresStore {
	return &PostgresStore{
		snapshots: model.NewMarketSnapshotsModel(conn),
		appKey:    appKey,
	}
}

// Load reads the snapshot row, returning nil when none exists.
func (p *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	snap, err := p.snapshots.FindOne(ctx, p.appKey)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", p.appKey, err)
	}
	return snap.Payload, nil
}

// Save upserts the snapshot row.
func (p *PostgresStore) Save(ctx context.Context, data []byte) error {
	err := p.snapshots.Upsert(ctx, &model.MarketSnapshot{AppKey: p.appKey, Payload: data})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", p.appKey, err)
	}
	return nil
}
