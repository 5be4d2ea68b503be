package storage

import (
	"database/sql"
	"fmt"
	"time"

	"dbdeck/internal/domain"
)

// QueryResultStore manages cached query results in SQLite.
type QueryResultStore struct {
	db *DB
}

// NewQueryResultStore creates a new QueryResultStore.
func NewQueryResultStore(db *DB) *QueryResultStore {
	return &QueryResultStore{db: db}
}

// UpsertResult inserts or replaces the cached result for a query.
func (s *QueryResultStore) UpsertResult(r *domain.QueryResult) error {
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now()
	}

	isWrite := 0
	if r.IsWrite {
		isWrite = 1
	}

	_, err := s.db.Conn().Exec(
		`INSERT INTO query_results (id, query_id, connection_id, query, columns_json, rows_json, row_count, is_write, executed_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   query=excluded.query, columns_json=excluded.columns_json, rows_json=excluded.rows_json,
		   row_count=excluded.row_count, is_write=excluded.is_write, executed_at=excluded.executed_at,
		   duration_ms=excluded.duration_ms, error=excluded.error`,
		r.ID, r.QueryID, r.ConnectionID, r.Query, r.ColumnsJSON, r.RowsJSON,
		r.RowCount, isWrite, r.ExecutedAt, r.DurationMs, r.Error,
	)
	return err
}

// GetResultByQuery retrieves the latest cached result for a query, or nil.
func (s *QueryResultStore) GetResultByQuery(queryID string) (*domain.QueryResult, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, query_id, connection_id, query, columns_json, rows_json, row_count, is_write, executed_at, duration_ms, error
		 FROM query_results WHERE query_id = ? ORDER BY executed_at DESC LIMIT 1`, queryID,
	)

	r := &domain.QueryResult{}
	var isWrite int
	err := row.Scan(&r.ID, &r.QueryID, &r.ConnectionID, &r.Query, &r.ColumnsJSON,
		&r.RowsJSON, &r.RowCount, &isWrite, &r.ExecutedAt, &r.DurationMs, &r.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan query result: %w", err)
	}
	r.IsWrite = isWrite == 1
	return r, nil
}

// DeleteResultsByQuery removes all cached results for a query.
func (s *QueryResultStore) DeleteResultsByQuery(queryID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM query_results WHERE query_id = ?`, queryID)
	return err
}

// DeleteResultsByConnection removes all cached results for a connection.
func (s *QueryResultStore) DeleteResultsByConnection(connectionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM query_results WHERE connection_id = ?`, connectionID)
	return err
}
