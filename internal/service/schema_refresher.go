package service

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"dbdeck/internal/dbclient"
	"dbdeck/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Schema Refresher — cached introspection with background refresh
// ─────────────────────────────────────────────────────────────

// SchemaRefresher keeps schema snapshots warm for active connections. It
// re-introspects on a cron schedule and, for SQLite connections, whenever
// the database file changes on disk.
type SchemaRefresher struct {
	conns    domain.ConnectionStore
	registry *dbclient.Registry
	executor *dbclient.Executor

	mu    sync.Mutex
	cache map[string]*dbclient.SchemaInfo

	// watcher / cron lifecycle. Guarded by watchMu: RebuildWatches runs on
	// every connection CRUD call and those arrive concurrently over MCP.
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewSchemaRefresher creates a refresher. Call Start to begin background
// refresh; Schema works either way.
func NewSchemaRefresher(conns domain.ConnectionStore, registry *dbclient.Registry, executor *dbclient.Executor) *SchemaRefresher {
	return &SchemaRefresher{
		conns:    conns,
		registry: registry,
		executor: executor,
		cache:    map[string]*dbclient.SchemaInfo{},
	}
}

// Schema returns the cached snapshot for a connection, introspecting on a
// miss.
func (s *SchemaRefresher) Schema(ctx context.Context, desc *domain.ConnectionDescriptor) (*dbclient.SchemaInfo, error) {
	s.mu.Lock()
	if info, ok := s.cache[desc.ID]; ok {
		s.mu.Unlock()
		return info, nil
	}
	s.mu.Unlock()

	info, err := s.executor.FullSchema(ctx, desc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[desc.ID] = info
	s.mu.Unlock()
	return info, nil
}

// Invalidate drops the cached snapshot for a connection.
func (s *SchemaRefresher) Invalidate(connectionID string) {
	s.mu.Lock()
	delete(s.cache, connectionID)
	s.mu.Unlock()
}

// RefreshActive re-introspects every connection with a live handle. Errors
// are logged per connection; a failed refresh keeps the previous snapshot.
func (s *SchemaRefresher) RefreshActive(ctx context.Context) {
	for _, desc := range s.registry.ListActive() {
		d := desc
		info, err := s.executor.FullSchema(ctx, &d)
		if err != nil {
			log.Printf("schema refresh: %s (%s): %v", d.Name, d.ID, err)
			continue
		}
		s.mu.Lock()
		s.cache[d.ID] = info
		s.mu.Unlock()
	}
}

// Start begins the cron-scheduled refresh and the SQLite file watchers.
// An empty cronExpr disables the scheduled refresh but keeps the watchers.
func (s *SchemaRefresher) Start(ctx context.Context, cronExpr string) error {
	if cronExpr != "" {
		c := cron.New()
		if _, err := c.AddFunc(cronExpr, func() {
			s.RefreshActive(ctx)
		}); err != nil {
			return err
		}
		c.Start()
		s.watchMu.Lock()
		s.cronSched = c
		s.watchMu.Unlock()
		log.Printf("schema refresh: scheduled %q", cronExpr)
	}

	s.RebuildWatches()
	return nil
}

// RebuildWatches tears down the current file watcher and rebuilds it from
// the stored SQLite connections. Safe to call concurrently; overlapping
// calls serialize on watchMu so a rebuild never closes a watcher another
// rebuild just installed.
func (s *SchemaRefresher) RebuildWatches() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.teardownWatchesLocked()

	conns, err := s.conns.ListConnections()
	if err != nil {
		log.Printf("schema watcher: failed to list connections: %v", err)
		return
	}

	type watchEntry struct {
		connID string
		path   string
	}
	var entries []watchEntry
	for _, c := range conns {
		if c.Engine == domain.EngineSQLite && c.Params.Host != "" {
			entries = append(entries, watchEntry{connID: c.ID, path: c.Params.Host})
		}
	}

	if len(entries) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("schema watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	pathToConn := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.path)
		if err != nil {
			log.Printf("schema watcher: bad path %q: %v", e.path, err)
			continue
		}
		pathToConn[absPath] = e.connID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Printf("schema watcher: failed to watch dir %q: %v", dir, err)
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				connID, ok := pathToConn[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[connID]; exists {
					t.Stop()
				}
				cid := connID
				timers[connID] = time.AfterFunc(500*time.Millisecond, func() {
					s.Invalidate(cid)
					log.Printf("schema watcher: file changed %q, invalidated %s", absPath, cid)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("schema watcher: error: %v", err)
			}
		}
	}()

	log.Printf("schema watcher: watching %d file(s)", len(pathToConn))
}

// Stop tears down the cron scheduler and file watchers.
func (s *SchemaRefresher) Stop() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.teardownWatchesLocked()
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

// teardownWatchesLocked closes the current watcher and its event goroutine.
// Caller holds watchMu.
func (s *SchemaRefresher) teardownWatchesLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}
