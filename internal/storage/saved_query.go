package storage

import (
	"database/sql"
	"fmt"
	"time"

	"dbdeck/internal/domain"
)

// SavedQueryStore manages stored SQL snippets in SQLite.
type SavedQueryStore struct {
	db *DB
}

// NewSavedQueryStore creates a new SavedQueryStore.
func NewSavedQueryStore(db *DB) *SavedQueryStore {
	return &SavedQueryStore{db: db}
}

func (s *SavedQueryStore) CreateSavedQuery(q *domain.SavedQuery) error {
	now := time.Now()
	q.CreatedAt = now
	q.UpdatedAt = now

	_, err := s.db.Conn().Exec(
		`INSERT INTO saved_queries (id, name, connection_id, sql_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.ConnectionID, q.SQL, q.CreatedAt, q.UpdatedAt,
	)
	return err
}

func (s *SavedQueryStore) GetSavedQuery(id string) (*domain.SavedQuery, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, name, connection_id, sql_text, created_at, updated_at
		 FROM saved_queries WHERE id = ?`, id,
	)

	q := &domain.SavedQuery{}
	err := row.Scan(&q.ID, &q.Name, &q.ConnectionID, &q.SQL, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("saved query not found: %s", id)
	}
	return q, err
}

// ListSavedQueries returns saved queries, optionally filtered by connection.
func (s *SavedQueryStore) ListSavedQueries(connectionID string) ([]domain.SavedQuery, error) {
	query := `SELECT id, name, connection_id, sql_text, created_at, updated_at FROM saved_queries`
	args := []any{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queries []domain.SavedQuery
	for rows.Next() {
		var q domain.SavedQuery
		if err := rows.Scan(&q.ID, &q.Name, &q.ConnectionID, &q.SQL, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *SavedQueryStore) UpdateSavedQuery(q *domain.SavedQuery) error {
	q.UpdatedAt = time.Now()
	_, err := s.db.Conn().Exec(
		`UPDATE saved_queries SET name=?, connection_id=?, sql_text=?, updated_at=? WHERE id=?`,
		q.Name, q.ConnectionID, q.SQL, q.UpdatedAt, q.ID,
	)
	return err
}

func (s *SavedQueryStore) DeleteSavedQuery(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM saved_queries WHERE id = ?`, id)
	return err
}
