package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/arcade/internal/state"
)

const historyTable = "migrations_history"

// HistoryStore implements state.HistoryStore for PostgreSQL.
type HistoryStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewHistoryStore connects to PostgreSQL and creates the history table.
func NewHistoryStore(ctx context.Context, connStr, schema string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewHistoryStoreFromPool(pool, schema)
	if err := s.Initialize(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}
	return s, nil
}

// NewHistoryStoreFromPool wraps an existing pool. Initialize is not called.
func NewHistoryStoreFromPool(pool *pgxpool.Pool, schema string) *HistoryStore {
	return &HistoryStore{pool: pool, schema: schema}
}

// Initialize creates the history table and its indexes
func (s *HistoryStore) Initialize(ctx context.Context) error {
	if s.schema != "" && s.schema != "public" {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(s.schema))); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	table := s.tableName()
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			connection VARCHAR(255) NOT NULL,
			base_url TEXT NOT NULL,
			database_name VARCHAR(255) NOT NULL,
			version BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT,
			executed_by VARCHAR(255),
			execution_method VARCHAR(20) NOT NULL DEFAULT 'manual',
			execution_context TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, table)
	if _, err := s.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", historyTable, err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_migrations_history_target ON %s (connection, database_name)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_migrations_history_applied_at ON %s (applied_at DESC)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_migrations_history_status ON %s (status)", table),
	}
	for _, idx := range indexes {
		if _, err := s.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// RecordExecution appends an execution record
func (s *HistoryStore) RecordExecution(ctx context.Context, rec *state.ExecutionRecord) error {
	executedBy := rec.ExecutedBy
	if executedBy == "" {
		executedBy = "system"
	}
	executionMethod := rec.ExecutionMethod
	if executionMethod == "" {
		executionMethod = "manual"
	}
	appliedAt := rec.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (id, connection, base_url, database_name, version, name, direction,
		                status, error_message, executed_by, execution_method, execution_context,
		                duration_ms, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, s.tableName())

	_, err := s.pool.Exec(ctx, insertSQL,
		rec.ID, rec.Connection, rec.BaseURL, rec.Database, rec.Version, rec.Name, rec.Direction,
		rec.Status, rec.ErrorMessage, executedBy, executionMethod, rec.ExecutionContext,
		rec.Duration.Milliseconds(), appliedAt)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", historyTable, err)
	}
	return nil
}

// History retrieves execution records with optional filters, newest first
func (s *HistoryStore) History(ctx context.Context, filters *state.HistoryFilters) ([]*state.ExecutionRecord, error) {
	query, args := buildHistoryQuery(s.tableName(), filters)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*state.ExecutionRecord
	for rows.Next() {
		var (
			rec        state.ExecutionRecord
			errMsg     *string
			executedBy *string
			execCtx    *string
			durationMS int64
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Connection,
			&rec.BaseURL,
			&rec.Database,
			&rec.Version,
			&rec.Name,
			&rec.Direction,
			&rec.Status,
			&errMsg,
			&executedBy,
			&rec.ExecutionMethod,
			&execCtx,
			&durationMS,
			&rec.AppliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.ErrorMessage = deref(errMsg)
		rec.ExecutedBy = deref(executedBy)
		rec.ExecutionContext = deref(execCtx)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close closes the connection pool
func (s *HistoryStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *HistoryStore) tableName() string {
	if s.schema != "" && s.schema != "public" {
		return fmt.Sprintf("%s.%s", quoteIdentifier(s.schema), quoteIdentifier(historyTable))
	}
	return historyTable
}

func buildHistoryQuery(table string, filters *state.HistoryFilters) (string, []interface{}) {
	query := fmt.Sprintf(`SELECT id::text, connection, base_url, database_name, version, name, direction,
		status, error_message, executed_by, execution_method, execution_context, duration_ms, applied_at
		FROM %s WHERE 1=1`, table)

	args := []interface{}{}
	argIndex := 1
	limit := 100

	if filters != nil {
		if filters.Connection != "" {
			query += fmt.Sprintf(" AND connection = $%d", argIndex)
			args = append(args, filters.Connection)
			argIndex++
		}
		if filters.Database != "" {
			query += fmt.Sprintf(" AND database_name = $%d", argIndex)
			args = append(args, filters.Database)
			argIndex++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argIndex)
			args = append(args, filters.Status)
			argIndex++
		}
		if filters.Version != 0 {
			query += fmt.Sprintf(" AND version = $%d", argIndex)
			args = append(args, filters.Version)
			argIndex++
		}
		if filters.Limit > 0 {
			limit = filters.Limit
		}
	}

	query += fmt.Sprintf(" ORDER BY applied_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)
	return query, args
}

// quoteIdentifier quotes a PostgreSQL identifier
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
