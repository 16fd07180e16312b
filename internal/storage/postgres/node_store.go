// Package postgres provides the Postgres-backed node store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
)

const (
	existsQuery = `SELECT EXISTS (SELECT 1 FROM proxy_nodes WHERE unique_hash = $1)`

	insertQuery = `
INSERT INTO proxy_nodes (
	protocol,
	link,
	unique_hash,
	source,
	created_at
) VALUES (
	$1,$2,$3,$4,$5
)
ON CONFLICT (unique_hash) DO NOTHING
RETURNING id`

	listQuery = `
SELECT id, protocol, link, unique_hash, source, created_at
FROM proxy_nodes
ORDER BY created_at DESC, id DESC`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txQueryCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// NodeStore persists proxy nodes in Postgres.
type NodeStore struct {
	pool txQueryCloser
}

// Connect opens a pgx pool for the provided config.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewNodeStoreWithPool constructs a store from an existing pool (pgxpool or pgxmock).
func NewNodeStoreWithPool(pool txQueryCloser) (*NodeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &NodeStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *NodeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Begin opens a database transaction for one persistence batch.
func (s *NodeStore) Begin(ctx context.Context) (harvest.NodeTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &nodeTx{tx: tx}, nil
}

// ListNodes returns nodes newest first. limit <= 0 returns every row.
func (s *NodeStore) ListNodes(ctx context.Context, limit int) ([]harvest.ProxyNode, error) {
	query := listQuery
	var args []any
	if limit > 0 {
		query += "\nLIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []harvest.ProxyNode
	for rows.Next() {
		var n harvest.ProxyNode
		if err := rows.Scan(&n.ID, &n.Protocol, &n.Link, &n.UniqueHash, &n.Source, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

type nodeTx struct {
	tx pgx.Tx
}

func (t *nodeTx) Exists(ctx context.Context, uniqueHash string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, existsQuery, uniqueHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check hash: %w", err)
	}
	return exists, nil
}

func (t *nodeTx) Insert(ctx context.Context, node *harvest.ProxyNode) error {
	if node == nil {
		return fmt.Errorf("node is required")
	}
	var id int64
	err := t.tx.QueryRow(ctx, insertQuery,
		node.Protocol,
		node.Link,
		node.UniqueHash,
		node.Source,
		node.CreatedAt,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Another writer committed the same hash first.
		return nil
	case err != nil:
		return fmt.Errorf("insert node: %w", err)
	}
	node.ID = id
	return nil
}

func (t *nodeTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *nodeTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
