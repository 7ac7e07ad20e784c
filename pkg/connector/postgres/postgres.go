// Package postgres implements the SQL connector over a pgx connection
// pool. Every pooled connection is forced read-only with a statement
// timeout on acquisition and reset on release, so no connection can leak a
// writable or unbounded state back to the pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/models"
)

// Config configures the connector pool.
type Config struct {
	DSN              string
	StatementTimeout time.Duration
	MaxConns         int32
}

// Connector is a pooled, read-only SQL connector.
type Connector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a connector and establishes the pool. The pool is
// process-wide and shared across requests.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 30 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connector DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	timeoutMs := cfg.StatementTimeout.Milliseconds()
	poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		_, err := conn.Exec(ctx, fmt.Sprintf(
			"SET default_transaction_read_only = on; SET statement_timeout = %d", timeoutMs))
		if err != nil {
			logger.Warn("Failed to set read-only state on SQL connection, discarding", "error", err)
			return false
		}
		return true
	}
	poolCfg.AfterRelease = func(conn *pgx.Conn) bool {
		_, err := conn.Exec(context.Background(),
			"RESET default_transaction_read_only; RESET statement_timeout")
		if err != nil {
			// Warn-only: the request already completed. The connection is
			// discarded instead of returning to the pool dirty.
			logger.Warn("Failed to reset SQL connection state, discarding", "error", err)
			return false
		}
		return true
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connector pool: %w", err)
	}
	return &Connector{pool: pool, logger: logger}, nil
}

// Query implements connector.SQLQuerier. The SQL has already been
// sanitized by the safety gate; MaxRows is applied again here as defence
// in depth.
func (c *Connector) Query(ctx context.Context, req connector.QueryRequest) (*connector.QueryResult, error) {
	rows, err := c.pool.Query(ctx, req.SQL)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var collected []map[string]any
	truncated := false
	for rows.Next() {
		if req.MaxRows >= 0 && int64(len(collected)) >= req.MaxRows {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return BuildResult(columns, collected, truncated)
}

// BuildResult assembles a QueryResult with its deterministic checksum.
func BuildResult(columns []string, rows []map[string]any, truncated bool) (*connector.QueryResult, error) {
	if rows == nil {
		rows = []map[string]any{}
	}
	checksum, err := models.Checksum(map[string]any{"columns": columns, "rows": rows})
	if err != nil {
		return nil, fmt.Errorf("checksum query result: %w", err)
	}
	return &connector.QueryResult{
		Columns:   columns,
		Rows:      rows,
		RowCount:  int64(len(rows)),
		Checksum:  checksum,
		Truncated: truncated,
	}, nil
}

// TestConnection implements connector.SQLQuerier.
func (c *Connector) TestConnection(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Disconnect implements connector.SQLQuerier.
func (c *Connector) Disconnect() {
	c.pool.Close()
}
