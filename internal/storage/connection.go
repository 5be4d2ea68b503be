package storage

import (
	"database/sql"
	"fmt"
	"time"

	"dbdeck/internal/domain"
)

// ConnectionStore manages connection descriptors in SQLite. The password
// column holds whatever the caller passes — the service layer stores only
// vault-tagged ciphertext, and this store round-trips it verbatim.
type ConnectionStore struct {
	db *DB
}

// NewConnectionStore creates a new ConnectionStore.
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

func (s *ConnectionStore) CreateConnection(d *domain.ConnectionDescriptor) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.Conn().Exec(
		`INSERT INTO connections (id, name, engine, host, port, database_name, username, password, ssl_mode, extra_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Engine, d.Params.Host, d.Params.Port, d.Params.Database,
		d.Params.Username, d.Params.Password, d.Params.SSLMode, d.Params.ExtraJSON,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (s *ConnectionStore) GetConnection(id string) (*domain.ConnectionDescriptor, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, name, engine, host, port, database_name, username, password, ssl_mode, extra_json, created_at, updated_at
		 FROM connections WHERE id = ?`, id,
	)

	d := &domain.ConnectionDescriptor{}
	err := row.Scan(&d.ID, &d.Name, &d.Engine, &d.Params.Host, &d.Params.Port,
		&d.Params.Database, &d.Params.Username, &d.Params.Password, &d.Params.SSLMode,
		&d.Params.ExtraJSON, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection not found: %s", id)
	}
	return d, err
}

func (s *ConnectionStore) ListConnections() ([]domain.ConnectionDescriptor, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, name, engine, host, port, database_name, username, password, ssl_mode, extra_json, created_at, updated_at
		 FROM connections ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.ConnectionDescriptor
	for rows.Next() {
		var d domain.ConnectionDescriptor
		if err := rows.Scan(&d.ID, &d.Name, &d.Engine, &d.Params.Host, &d.Params.Port,
			&d.Params.Database, &d.Params.Username, &d.Params.Password, &d.Params.SSLMode,
			&d.Params.ExtraJSON, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, d)
	}
	return conns, rows.Err()
}

func (s *ConnectionStore) UpdateConnection(d *domain.ConnectionDescriptor) error {
	d.UpdatedAt = time.Now()
	_, err := s.db.Conn().Exec(
		`UPDATE connections SET name=?, engine=?, host=?, port=?, database_name=?, username=?, password=?, ssl_mode=?, extra_json=?, updated_at=?
		 WHERE id=?`,
		d.Name, d.Engine, d.Params.Host, d.Params.Port, d.Params.Database,
		d.Params.Username, d.Params.Password, d.Params.SSLMode, d.Params.ExtraJSON,
		d.UpdatedAt, d.ID,
	)
	return err
}

func (s *ConnectionStore) DeleteConnection(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM connections WHERE id = ?`, id)
	return err
}
