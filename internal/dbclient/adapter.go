package dbclient

import (
	"context"
	"time"

	"dbdeck/internal/domain"
)

// testConnectTimeout bounds connectivity probes so the "Test Connection"
// button stays responsive. Regular query execution carries no built-in
// deadline; long-running queries are the caller's concern.
const testConnectTimeout = 5 * time.Second

// Result is the uniform tabular contract every consumer reads: UI tables,
// export, AI tool calls. For reads len(Rows) == RowCount; for writes Rows is
// empty and RowCount is the driver-reported affected-row count.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
	IsWrite  bool             `json:"isWrite"`
}

// SchemaInfo contains the database schema for autocomplete and AI grounding.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKeys []string     `json:"primaryKeys,omitempty"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Mutation describes a single row-level change (update or delete).
type Mutation struct {
	Type    string         `json:"type"`    // "update" | "delete"
	RowKey  map[string]any `json:"rowKey"`  // PK column → value
	Changes map[string]any `json:"changes"` // column → new value (update only)
}

// MutationResult summarizes the outcome of a batch of mutations.
type MutationResult struct {
	Applied int      `json:"applied"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult is the non-throwing outcome of a connectivity probe.
type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handle is a live, stateful driver session bound to one descriptor.
// Close is idempotent.
type Handle interface {
	// Execute runs a statement with positional parameters and returns the
	// normalized result. Failures are reported as *QueryError.
	Execute(ctx context.Context, query string, args ...any) (*Result, error)

	// Schema introspects tables and columns.
	Schema(ctx context.Context) (*SchemaInfo, error)

	// ApplyMutations executes a batch of row-level updates/deletes.
	ApplyMutations(ctx context.Context, table string, mutations []Mutation) (*MutationResult, error)

	// Close releases all resources held by the session.
	Close() error
}

// Adapter opens and probes connections for one engine. Adding an engine means
// one new implementation plus one entry in DefaultAdapters.
type Adapter interface {
	// Engine reports which engine this adapter serves.
	Engine() domain.Engine

	// TestConnect opens a short-lived connection, runs a liveness check, and
	// releases it regardless of outcome. It never leaks a handle.
	TestConnect(ctx context.Context, desc *domain.ConnectionDescriptor, password string) error

	// Open establishes a long-lived handle appropriate to the engine's
	// concurrency model, verifying liveness before returning it.
	Open(ctx context.Context, desc *domain.ConnectionDescriptor, password string) (Handle, error)
}

// DefaultAdapters returns one adapter per supported engine.
func DefaultAdapters() map[domain.Engine]Adapter {
	return map[domain.Engine]Adapter{
		domain.EnginePostgres: postgresAdapter{},
		domain.EngineMySQL:    mysqlAdapter{},
		domain.EngineSQLite:   sqliteAdapter{},
		domain.EngineMongoDB:  mongoAdapter{},
	}
}
