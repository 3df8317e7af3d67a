// Package clickhouse persists the export task pool and the alert journal in ClickHouse.
package clickhouse

import (
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type Repository struct {
	conn    Conn
	chain   string
	metrics Metrics
}

// NewRepository opens a connection. chain scopes every row, so several exporters can share a database.
func NewRepository(dsn, chain string, metrics Metrics) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}
	if chain == "" {
		return nil, errors.New("chain is required")
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &Repository{conn: conn, chain: chain, metrics: metrics}, nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}
