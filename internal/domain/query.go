package domain

import "time"

// SavedQuery is a stored SQL snippet bound to a connection.
type SavedQuery struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ConnectionID string    `json:"connectionId"`
	SQL          string    `json:"sql"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SavedQueryStore manages stored SQL snippets.
type SavedQueryStore interface {
	CreateSavedQuery(q *SavedQuery) error
	GetSavedQuery(id string) (*SavedQuery, error)
	ListSavedQueries(connectionID string) ([]SavedQuery, error)
	UpdateSavedQuery(q *SavedQuery) error
	DeleteSavedQuery(id string) error
}

// QueryResult is the cached outcome of a query execution, serialized for
// redisplay and export without re-running the statement.
type QueryResult struct {
	ID           string    `json:"id"`
	QueryID      string    `json:"queryId"` // saved query or caller-chosen cache key
	ConnectionID string    `json:"connectionId"`
	Query        string    `json:"query"`
	ColumnsJSON  string    `json:"columnsJson"` // JSON array of column names
	RowsJSON     string    `json:"rowsJson"`    // JSON array of row objects
	RowCount     int       `json:"rowCount"`
	IsWrite      bool      `json:"isWrite"`
	ExecutedAt   time.Time `json:"executedAt"`
	DurationMs   int       `json:"durationMs"`
	Error        string    `json:"error"`
}

// QueryResultStore manages cached query results.
type QueryResultStore interface {
	UpsertResult(r *QueryResult) error
	GetResultByQuery(queryID string) (*QueryResult, error)
	DeleteResultsByQuery(queryID string) error
	DeleteResultsByConnection(connectionID string) error
}
