package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"dbdeck/internal/domain"
)

// sqlHandle is the shared Handle implementation for Postgres, MySQL, and
// SQLite. The engine's concurrency model is expressed entirely through the
// pool limits set at open time: Postgres runs a real pool, MySQL and SQLite
// are capped to a single connection so concurrent queries queue.
type sqlHandle struct {
	engine     domain.Engine
	driverName string
	db         *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// newSQLHandle wraps an already-open *sql.DB. Split from openSQLHandle so
// tests can inject a mock driver.
func newSQLHandle(engine domain.Engine, driverName string, db *sql.DB) *sqlHandle {
	return &sqlHandle{engine: engine, driverName: driverName, db: db}
}

// openSQLHandle opens a database/sql pool, applies the engine's connection
// limits, and verifies liveness before handing the handle out. On failure the
// pool is closed; no resources leak.
func openSQLHandle(ctx context.Context, engine domain.Engine, driverName, dsn string, maxConns int) (*sqlHandle, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Engine: engine, Err: err}
	}
	db.SetMaxOpenConns(maxConns)
	if maxConns > 1 {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Engine: engine, Err: err}
	}
	return newSQLHandle(engine, driverName, db), nil
}

// probeSQL is the short-lived connectivity check behind TestConnect. The
// probe pool is always closed, so repeated tests cannot leak sessions.
func probeSQL(ctx context.Context, engine domain.Engine, driverName, dsn string) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return &ConnectionError{Engine: engine, Err: err}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, testConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return &ConnectionError{Engine: engine, Err: err}
	}
	return nil
}

// isReadQuery detects if a query is a read (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN, PRAGMA).
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

func (h *sqlHandle) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	if !isReadQuery(query) {
		return h.execWrite(ctx, query, args...)
	}
	return h.execRead(ctx, query, args...)
}

func (h *sqlHandle) execWrite(ctx context.Context, query string, args ...any) (*Result, error) {
	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}
	affected, _ := result.RowsAffected()
	return &Result{
		Rows:     []map[string]any{},
		RowCount: int(affected),
		IsWrite:  true,
	}, nil
}

func (h *sqlHandle) execRead(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}

	out := &Result{Columns: cols, Rows: []map[string]any{}}
	numCols := len(cols)
	for rows.Next() {
		values := make([]any, numCols)
		ptrs := make([]any, numCols)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Engine: h.engine, Err: err}
		}
		// Map rows keyed by column name. Duplicate names stay listed in
		// Columns; within a row the last duplicate wins.
		row := make(map[string]any, numCols)
		for i, col := range cols {
			row[col] = formatValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}
	out.RowCount = len(out.Rows)
	return out, nil
}

// formatValue converts a driver value into a JSON-friendly scalar.
func formatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (h *sqlHandle) Schema(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch h.engine {
	case domain.EngineSQLite:
		return h.schemaSQLite(ctx)
	case domain.EnginePostgres:
		return h.schemaInfoSchema(ctx,
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = current_schema() ORDER BY table_name`,
			`SELECT column_name, data_type FROM information_schema.columns
			 WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
			`SELECT kcu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name
			 WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = $1
			 ORDER BY kcu.ordinal_position`)
	default: // mysql
		return h.schemaInfoSchema(ctx,
			`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			 WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`,
			`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
			`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
			 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
			 ORDER BY ORDINAL_POSITION`)
	}
}

// schemaInfoSchema serves MySQL and Postgres; each passes its own
// INFORMATION_SCHEMA queries with dialect-appropriate placeholders.
func (h *sqlHandle) schemaInfoSchema(ctx context.Context, tablesQ, columnsQ, pksQ string) (*SchemaInfo, error) {
	rows, err := h.db.QueryContext(ctx, tablesQ)
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: fmt.Errorf("list tables: %w", err)}
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tableNames = append(tableNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}

	schema := &SchemaInfo{}
	for _, tbl := range tableNames {
		info := TableInfo{Name: tbl}

		colRows, err := h.db.QueryContext(ctx, columnsQ, tbl)
		if err != nil {
			schema.Tables = append(schema.Tables, info)
			continue
		}
		for colRows.Next() {
			var ci ColumnInfo
			if err := colRows.Scan(&ci.Name, &ci.Type); err != nil {
				continue
			}
			info.Columns = append(info.Columns, ci)
		}
		colRows.Close()

		if pkRows, err := h.db.QueryContext(ctx, pksQ, tbl); err == nil {
			for pkRows.Next() {
				var name string
				if err := pkRows.Scan(&name); err != nil {
					continue
				}
				info.PrimaryKeys = append(info.PrimaryKeys, name)
			}
			pkRows.Close()
		}

		schema.Tables = append(schema.Tables, info)
	}
	return schema, nil
}

// schemaSQLite uses sqlite_master + PRAGMA table_info.
func (h *sqlHandle) schemaSQLite(ctx context.Context) (*SchemaInfo, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: fmt.Errorf("list tables: %w", err)}
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tableNames = append(tableNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Engine: h.engine, Err: err}
	}

	schema := &SchemaInfo{}
	for _, tbl := range tableNames {
		info := TableInfo{Name: tbl}

		pragmaRows, err := h.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info('%s')", tbl))
		if err != nil {
			schema.Tables = append(schema.Tables, info)
			continue
		}
		for pragmaRows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dfltValue sql.NullString
			if err := pragmaRows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
				continue
			}
			info.Columns = append(info.Columns, ColumnInfo{Name: name, Type: colType})
			if pk > 0 {
				info.PrimaryKeys = append(info.PrimaryKeys, name)
			}
		}
		pragmaRows.Close()

		if len(info.PrimaryKeys) == 0 {
			info.PrimaryKeys = []string{"rowid"}
		}
		schema.Tables = append(schema.Tables, info)
	}
	return schema, nil
}

// placeholders picks the bind-parameter style for generated statements.
func (h *sqlHandle) placeholders() sq.PlaceholderFormat {
	if h.engine == domain.EnginePostgres {
		return sq.Dollar
	}
	return sq.Question
}

func (h *sqlHandle) ApplyMutations(ctx context.Context, table string, mutations []Mutation) (*MutationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &QueryError{Engine: h.engine, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	builder := sq.StatementBuilder.PlaceholderFormat(h.placeholders())

	result := &MutationResult{}
	for _, m := range mutations {
		var query string
		var args []any
		var buildErr error

		switch m.Type {
		case "update":
			if len(m.Changes) == 0 {
				result.Applied++
				continue
			}
			query, args, buildErr = builder.
				Update(table).
				SetMap(m.Changes).
				Where(sq.Eq(m.RowKey)).
				ToSql()
		case "delete":
			query, args, buildErr = builder.
				Delete(table).
				Where(sq.Eq(m.RowKey)).
				ToSql()
		default:
			buildErr = fmt.Errorf("unknown mutation type: %s", m.Type)
		}

		if buildErr == nil {
			_, buildErr = tx.ExecContext(ctx, query, args...)
		}
		if buildErr != nil {
			result.Errors = append(result.Errors, buildErr.Error())
		} else {
			result.Applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &QueryError{Engine: h.engine, Err: fmt.Errorf("commit: %w", err)}
	}
	return result, nil
}

// Close releases the pool. Closing an already-closed handle is not an error.
func (h *sqlHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.db.Close()
	})
	return h.closeErr
}
