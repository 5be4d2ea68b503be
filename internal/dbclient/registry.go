package dbclient

import (
	"context"
	"sort"
	"sync"

	"dbdeck/internal/domain"
	"dbdeck/internal/vault"
)

// entry pairs a descriptor with its live handle.
type entry struct {
	desc   *domain.ConnectionDescriptor
	handle Handle
}

// Registry owns all live handles, keyed by descriptor ID. At most one handle
// exists per ID at any time. It is constructed once at process start and
// passed by reference, never a package global, so tests get a fresh instance.
type Registry struct {
	vault    *vault.Vault
	adapters map[domain.Engine]Adapter

	mu      sync.Mutex
	entries map[string]*entry
	opening map[string]*idLock
}

// idLock serializes connect/disconnect per connection ID without holding the
// registry-wide lock across a driver dial.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a Registry. The vault decrypts stored passwords on the
// connect path; adapters is typically DefaultAdapters().
func NewRegistry(v *vault.Vault, adapters map[domain.Engine]Adapter) *Registry {
	return &Registry{
		vault:    v,
		adapters: adapters,
		entries:  make(map[string]*entry),
		opening:  make(map[string]*idLock),
	}
}

// adapter resolves the adapter for an engine, or fails loudly.
func (r *Registry) adapter(engine domain.Engine) (Adapter, error) {
	ad, ok := r.adapters[engine]
	if !ok {
		return nil, &UnsupportedEngineError{Engine: engine}
	}
	return ad, nil
}

// lockID acquires the per-ID lock and returns its release func. The lock map
// entry is reference-counted so it disappears once nobody contends on the ID.
func (r *Registry) lockID(id string) func() {
	r.mu.Lock()
	l, ok := r.opening[id]
	if !ok {
		l = &idLock{}
		r.opening[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.opening, id)
		}
		r.mu.Unlock()
	}
}

// Connect returns the live handle for the descriptor, opening one if absent.
// Concurrent calls for the same ID are serialized: exactly one open happens
// and every caller receives the same handle. A failed open leaves no entry.
func (r *Registry) Connect(ctx context.Context, desc *domain.ConnectionDescriptor) (Handle, error) {
	ad, err := r.adapter(desc.Engine)
	if err != nil {
		return nil, err
	}

	unlock := r.lockID(desc.ID)
	defer unlock()

	r.mu.Lock()
	if e, ok := r.entries[desc.ID]; ok {
		r.mu.Unlock()
		return e.handle, nil
	}
	r.mu.Unlock()

	password, err := r.vault.Reveal(desc.Params.Password)
	if err != nil {
		// Connecting cannot proceed without a usable password.
		return nil, &ConnectionError{Engine: desc.Engine, Err: err}
	}

	h, err := ad.Open(ctx, desc, password)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[desc.ID] = &entry{desc: desc, handle: h}
	r.mu.Unlock()
	return h, nil
}

// Disconnect closes and removes the handle for the descriptor. An absent ID
// is a no-op. The entry is removed even if Close reports an error, so the
// next caller gets a fresh connect rather than a torn-down handle.
func (r *Registry) Disconnect(desc *domain.ConnectionDescriptor) error {
	unlock := r.lockID(desc.ID)
	defer unlock()

	r.mu.Lock()
	e, ok := r.entries[desc.ID]
	if ok {
		delete(r.entries, desc.ID)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return e.handle.Close()
}

// Lookup returns the live handle for an ID without creating one.
func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// ListActive snapshots the descriptors with a live handle, sorted by name.
func (r *Registry) ListActive() []domain.ConnectionDescriptor {
	r.mu.Lock()
	out := make([]domain.ConnectionDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e.desc)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseAll tears down every live handle. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		_ = e.handle.Close()
	}
}
