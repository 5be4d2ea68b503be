package dbclient

import (
	"fmt"

	"dbdeck/internal/domain"
)

// UnsupportedEngineError means a descriptor names an engine with no adapter.
// It is a configuration bug, surfaced immediately and never retried.
type UnsupportedEngineError struct {
	Engine domain.Engine
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported engine: %q", e.Engine)
}

// ConnectionError wraps a failed open or probe. The raw driver diagnostic is
// preserved because it is the caller's main debugging aid.
type ConnectionError struct {
	Engine domain.Engine
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError wraps a failed statement execution. The connection itself
// remains usable for subsequent queries.
type QueryError struct {
	Engine domain.Engine
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Engine, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
