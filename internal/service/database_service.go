package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dbdeck/internal/dbclient"
	"dbdeck/internal/domain"
	"dbdeck/internal/vault"
)

// ─────────────────────────────────────────────────────────────
// Database Service — the surface the UI shell binds against
// ─────────────────────────────────────────────────────────────

// ConnectionInput is the DTO for creating/updating connections. The password
// arrives in plaintext exactly once and is vault-protected before it touches
// any store.
type ConnectionInput struct {
	Name      string `json:"name"`
	Engine    string `json:"engine"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"`
}

// ConnectionView is what leaves this layer. It deliberately has no password
// field, so neither plaintext nor ciphertext is ever echoed to a caller.
type ConnectionView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Engine    string `json:"engine"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	SSLMode   string `json:"sslMode"`
	Connected bool   `json:"connected"`
}

// QueryResultView carries a normalized result plus execution metadata.
type QueryResultView struct {
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"rowCount"`
	IsWrite    bool             `json:"isWrite"`
	DurationMs int              `json:"durationMs"`
	Error      string           `json:"error,omitempty"`
	Query      string           `json:"query,omitempty"`
}

// DatabaseService manages connection descriptors, query execution, and
// result caching on top of the registry/executor core.
type DatabaseService struct {
	conns    domain.ConnectionStore
	results  domain.QueryResultStore
	saved    domain.SavedQueryStore
	vault    *vault.Vault
	registry *dbclient.Registry
	executor *dbclient.Executor

	refresher *SchemaRefresher // optional, set after construction
}

// NewDatabaseService creates a DatabaseService.
func NewDatabaseService(
	conns domain.ConnectionStore,
	results domain.QueryResultStore,
	saved domain.SavedQueryStore,
	v *vault.Vault,
	registry *dbclient.Registry,
	executor *dbclient.Executor,
) *DatabaseService {
	return &DatabaseService{
		conns:    conns,
		results:  results,
		saved:    saved,
		vault:    v,
		registry: registry,
		executor: executor,
	}
}

// SetRefresher wires the background schema refresher so CRUD operations can
// invalidate its cache and watch set.
func (s *DatabaseService) SetRefresher(r *SchemaRefresher) {
	s.refresher = r
}

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]ConnectionView, error) {
	conns, err := s.conns.ListConnections()
	if err != nil {
		return nil, err
	}
	active := s.activeIDs()
	views := make([]ConnectionView, len(conns))
	for i, c := range conns {
		views[i] = s.view(&c, active[c.ID])
	}
	return views, nil
}

func (s *DatabaseService) CreateConnection(input ConnectionInput) (*ConnectionView, error) {
	password, err := s.vault.Protect(input.Password)
	if err != nil {
		return nil, fmt.Errorf("protect password: %w", err)
	}

	desc := &domain.ConnectionDescriptor{
		ID:     uuid.New().String(),
		Name:   input.Name,
		Engine: domain.Engine(input.Engine),
		Params: domain.ConnectionParams{
			Host:      input.Host,
			Port:      input.Port,
			Database:  input.Database,
			Username:  input.Username,
			Password:  password,
			SSLMode:   input.SSLMode,
			ExtraJSON: input.ExtraJSON,
		},
	}
	if err := s.conns.CreateConnection(desc); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	s.rebuildWatches()

	v := s.view(desc, false)
	return &v, nil
}

func (s *DatabaseService) UpdateConnection(id string, input ConnectionInput) error {
	desc, err := s.conns.GetConnection(id)
	if err != nil {
		return err
	}

	desc.Name = input.Name
	desc.Engine = domain.Engine(input.Engine)
	desc.Params.Host = input.Host
	desc.Params.Port = input.Port
	desc.Params.Database = input.Database
	desc.Params.Username = input.Username
	desc.Params.SSLMode = input.SSLMode
	desc.Params.ExtraJSON = input.ExtraJSON
	// An empty password means "keep the stored one".
	if input.Password != "" {
		protected, err := s.vault.Protect(input.Password)
		if err != nil {
			return fmt.Errorf("protect password: %w", err)
		}
		desc.Params.Password = protected
	}

	if err := s.conns.UpdateConnection(desc); err != nil {
		return err
	}

	// Drop the live handle so the next query reconnects with the new config.
	if err := s.registry.Disconnect(desc); err != nil {
		return fmt.Errorf("close stale handle: %w", err)
	}
	if s.refresher != nil {
		s.refresher.Invalidate(id)
	}
	s.rebuildWatches()
	return nil
}

// DeleteConnections removes descriptors, their cached results, and any live
// handles.
func (s *DatabaseService) DeleteConnections(ids []string) error {
	for _, id := range ids {
		desc, err := s.conns.GetConnection(id)
		if err != nil {
			return err
		}
		if err := s.registry.Disconnect(desc); err != nil {
			return fmt.Errorf("close handle for %s: %w", id, err)
		}
		if err := s.results.DeleteResultsByConnection(id); err != nil {
			return fmt.Errorf("clear results for %s: %w", id, err)
		}
		if err := s.conns.DeleteConnection(id); err != nil {
			return err
		}
		if s.refresher != nil {
			s.refresher.Invalidate(id)
		}
	}
	s.rebuildWatches()
	return nil
}

// ── Lifecycle ──────────────────────────────────────────────

// TestConnection probes connectivity without touching the registry.
func (s *DatabaseService) TestConnection(ctx context.Context, id string) (dbclient.TestResult, error) {
	desc, err := s.conns.GetConnection(id)
	if err != nil {
		return dbclient.TestResult{}, err
	}
	return s.executor.TestConnection(ctx, desc), nil
}

// Connect establishes (or reuses) the live handle for a connection.
func (s *DatabaseService) Connect(ctx context.Context, id string) (*ConnectionView, error) {
	desc, err := s.conns.GetConnection(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Connect(ctx, desc); err != nil {
		return nil, err
	}
	v := s.view(desc, true)
	return &v, nil
}

// Disconnect closes the live handle for a connection, if any.
func (s *DatabaseService) Disconnect(id string) error {
	desc, err := s.conns.GetConnection(id)
	if err != nil {
		return err
	}
	if s.refresher != nil {
		s.refresher.Invalidate(id)
	}
	return s.registry.Disconnect(desc)
}

// ListActiveConnections snapshots the connections with a live handle.
func (s *DatabaseService) ListActiveConnections() []ConnectionView {
	active := s.registry.ListActive()
	views := make([]ConnectionView, len(active))
	for i, d := range active {
		views[i] = s.view(&d, true)
	}
	return views
}

// ── Query Execution ────────────────────────────────────────

// Run executes SQL against a connection and caches the outcome under
// queryID. Connection-level failures are returned as errors; query-level
// failures come back inside the view, cached alongside successes, because
// the raw engine text shown in place of results is the UI's debugging aid.
func (s *DatabaseService) Run(ctx context.Context, connectionID, queryID, query string, args ...any) (*QueryResultView, error) {
	desc, err := s.conns.GetConnection(connectionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.executor.Run(ctx, desc, query, args...)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		var qerr *dbclient.QueryError
		if !errors.As(err, &qerr) {
			// Connect/engine failures: the "connected" indicator stays off.
			return nil, err
		}
		s.cacheResult(queryID, connectionID, query, nil, durationMs, err.Error())
		return &QueryResultView{Error: err.Error(), DurationMs: durationMs, Query: query}, nil
	}

	s.cacheResult(queryID, connectionID, query, result, durationMs, "")
	return &QueryResultView{
		Columns:    result.Columns,
		Rows:       result.Rows,
		RowCount:   result.RowCount,
		IsWrite:    result.IsWrite,
		DurationMs: durationMs,
		Query:      query,
	}, nil
}

// RunSaved executes a saved query.
func (s *DatabaseService) RunSaved(ctx context.Context, queryID string) (*QueryResultView, error) {
	q, err := s.saved.GetSavedQuery(queryID)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, q.ConnectionID, q.ID, q.SQL)
}

// GetCachedResult returns the last cached result for a query, or nil.
func (s *DatabaseService) GetCachedResult(queryID string) (*QueryResultView, error) {
	r, err := s.results.GetResultByQuery(queryID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}

	var columns []string
	var rows []map[string]any
	json.Unmarshal([]byte(r.ColumnsJSON), &columns)
	json.Unmarshal([]byte(r.RowsJSON), &rows)

	return &QueryResultView{
		Columns:    columns,
		Rows:       rows,
		RowCount:   r.RowCount,
		IsWrite:    r.IsWrite,
		DurationMs: r.DurationMs,
		Error:      r.Error,
		Query:      r.Query,
	}, nil
}

func (s *DatabaseService) cacheResult(queryID, connectionID, query string, result *dbclient.Result, durationMs int, errText string) {
	r := &domain.QueryResult{
		ID:           uuid.New().String(),
		QueryID:      queryID,
		ConnectionID: connectionID,
		Query:        query,
		ColumnsJSON:  "[]",
		RowsJSON:     "[]",
		DurationMs:   durationMs,
		Error:        errText,
	}
	if result != nil {
		if result.Columns != nil {
			colJSON, _ := json.Marshal(result.Columns)
			r.ColumnsJSON = string(colJSON)
		}
		if result.Rows != nil {
			rowJSON, _ := json.Marshal(result.Rows)
			r.RowsJSON = string(rowJSON)
		}
		r.RowCount = result.RowCount
		r.IsWrite = result.IsWrite
	}
	if err := s.results.UpsertResult(r); err != nil {
		// Caching is best-effort; the live result already went back to the caller.
		log.Printf("[DB SERVICE] cache result for %s: %v", queryID, err)
	}
}

// ── Schema + Editing ───────────────────────────────────────

// FullSchema introspects the database behind a connection, preferring the
// refresher's cache when one is running.
func (s *DatabaseService) FullSchema(ctx context.Context, connectionID string) (*dbclient.SchemaInfo, error) {
	desc, err := s.conns.GetConnection(connectionID)
	if err != nil {
		return nil, err
	}
	if s.refresher != nil {
		return s.refresher.Schema(ctx, desc)
	}
	return s.executor.FullSchema(ctx, desc)
}

// ApplyMutations executes a batch of row-level edits.
func (s *DatabaseService) ApplyMutations(ctx context.Context, connectionID, table string, mutations []dbclient.Mutation) (*dbclient.MutationResult, error) {
	desc, err := s.conns.GetConnection(connectionID)
	if err != nil {
		return nil, err
	}
	return s.executor.ApplyMutations(ctx, desc, table, mutations)
}

// ── Saved queries ──────────────────────────────────────────

func (s *DatabaseService) CreateSavedQuery(name, connectionID, sqlText string) (*domain.SavedQuery, error) {
	q := &domain.SavedQuery{
		ID:           uuid.New().String(),
		Name:         name,
		ConnectionID: connectionID,
		SQL:          sqlText,
	}
	if err := s.saved.CreateSavedQuery(q); err != nil {
		return nil, fmt.Errorf("save query: %w", err)
	}
	return q, nil
}

func (s *DatabaseService) ListSavedQueries(connectionID string) ([]domain.SavedQuery, error) {
	return s.saved.ListSavedQueries(connectionID)
}

func (s *DatabaseService) DeleteSavedQuery(id string) error {
	if err := s.results.DeleteResultsByQuery(id); err != nil {
		return err
	}
	return s.saved.DeleteSavedQuery(id)
}

// ── Shutdown ───────────────────────────────────────────────

// Close tears down all live handles.
func (s *DatabaseService) Close() {
	s.registry.CloseAll()
}

// ── helpers ────────────────────────────────────────────────

func (s *DatabaseService) view(d *domain.ConnectionDescriptor, connected bool) ConnectionView {
	return ConnectionView{
		ID:        d.ID,
		Name:      d.Name,
		Engine:    string(d.Engine),
		Host:      d.Params.Host,
		Port:      d.Params.Port,
		Database:  d.Params.Database,
		Username:  d.Params.Username,
		SSLMode:   d.Params.SSLMode,
		Connected: connected,
	}
}

func (s *DatabaseService) activeIDs() map[string]bool {
	ids := map[string]bool{}
	for _, d := range s.registry.ListActive() {
		ids[d.ID] = true
	}
	return ids
}

func (s *DatabaseService) rebuildWatches() {
	if s.refresher != nil {
		s.refresher.RebuildWatches()
	}
}
