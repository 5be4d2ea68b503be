package dbclient

import (
	"context"

	"dbdeck/internal/domain"
)

// Executor is the façade every caller goes through to run SQL: it guarantees
// a live handle exists, executes, and returns a normalized result or a
// structured error. UI actions, AI tool calls, and background schema jobs
// all share one Executor.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(r *Registry) *Executor {
	return &Executor{registry: r}
}

// Run resolves (or creates) a handle for the descriptor and executes the
// statement with positional parameters.
func (e *Executor) Run(ctx context.Context, desc *domain.ConnectionDescriptor, query string, args ...any) (*Result, error) {
	h, err := e.registry.Connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, query, args...)
}

// TestConnection probes connectivity without touching the registry: no
// pooled handle is created or reused, and the probe connection is always
// released, so repeated tests cannot leak resources. It never raises;
// failures come back as a value.
func (e *Executor) TestConnection(ctx context.Context, desc *domain.ConnectionDescriptor) TestResult {
	ad, err := e.registry.adapter(desc.Engine)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	password, err := e.registry.vault.Reveal(desc.Params.Password)
	if err != nil {
		return TestResult{Error: (&ConnectionError{Engine: desc.Engine, Err: err}).Error()}
	}
	if err := ad.TestConnect(ctx, desc, password); err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true}
}

// FullSchema introspects the database behind the descriptor, connecting
// first if needed.
func (e *Executor) FullSchema(ctx context.Context, desc *domain.ConnectionDescriptor) (*SchemaInfo, error) {
	h, err := e.registry.Connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	return h.Schema(ctx)
}

// ApplyMutations runs a batch of row-level edits against the descriptor.
func (e *Executor) ApplyMutations(ctx context.Context, desc *domain.ConnectionDescriptor, table string, mutations []Mutation) (*MutationResult, error) {
	h, err := e.registry.Connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	return h.ApplyMutations(ctx, table, mutations)
}
