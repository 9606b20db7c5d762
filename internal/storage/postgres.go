package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Listing bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool returns the connection pool, for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// RecordCall inserts a ledger entry and sets its id
func (r *PostgresRepository) RecordCall(ctx context.Context, call *models.GatewayCall) error {
	query := `
		INSERT INTO gateway_calls (operation, model, attempts, duration_ms, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		string(call.Operation),
		call.Model,
		call.Attempts,
		call.DurationMS,
		call.Success,
		nullString(call.Error),
		call.CreatedAt,
	).Scan(&call.ID)
	if err != nil {
		return fmt.Errorf("failed to record gateway call: %w", err)
	}

	return nil
}

// ListCalls returns ledger entries, newest first
func (r *PostgresRepository) ListCalls(ctx context.Context, filter CallFilter) ([]*models.GatewayCall, error) {
	query, args := buildListCallsQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway calls: %w", err)
	}
	defer rows.Close()

	calls := make([]*models.GatewayCall, 0)
	for rows.Next() {
		var c models.GatewayCall
		var operation string
		var errMsg sql.NullString

		if err := rows.Scan(
			&c.ID,
			&operation,
			&c.Model,
			&c.Attempts,
			&c.DurationMS,
			&c.Success,
			&errMsg,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan gateway call: %w", err)
		}

		c.Operation = models.GatewayOperation(operation)
		c.Error = errMsg.String
		calls = append(calls, &c)
	}

	return calls, rows.Err()
}

func buildListCallsQuery(filter CallFilter) (string, []interface{}) {
	query := `
		SELECT id, operation, model, attempts, duration_ms, success, error, created_at
		FROM gateway_calls
		WHERE 1=1
	`
	args := make([]interface{}, 0)
	argNum := 1

	if filter.Operation != "" {
		query += fmt.Sprintf(" AND operation = $%d", argNum)
		args = append(args, string(filter.Operation))
		argNum++
	}

	if filter.Failed != nil {
		query += fmt.Sprintf(" AND success = $%d", argNum)
		args = append(args, !*filter.Failed)
		argNum++
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)
	argNum++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	return query, args
}

// CallStats aggregates the ledger per operation
func (r *PostgresRepository) CallStats(ctx context.Context) ([]*OperationStats, error) {
	query := `
		SELECT operation,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE NOT success),
		       COALESCE(AVG(attempts), 0)::float8,
		       COALESCE(AVG(duration_ms), 0)::float8
		FROM gateway_calls
		GROUP BY operation
		ORDER BY operation
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate gateway calls: %w", err)
	}
	defer rows.Close()

	stats := make([]*OperationStats, 0)
	for rows.Next() {
		var s OperationStats
		var operation string
		if err := rows.Scan(&operation, &s.Calls, &s.Failures, &s.AvgAttempts, &s.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan gateway stats: %w", err)
		}
		s.Operation = models.GatewayOperation(operation)
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
