package domain

import "time"

// Engine identifies a supported database engine.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
	EngineSQLite   Engine = "sqlite"
	EngineMongoDB  Engine = "mongodb"
)

// ConnectionParams is the engine-specific address bag for a connection.
// Host doubles as the file path for SQLite.
type ConnectionParams struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`     // 0 for sqlite
	Database  string `json:"database"` // db name, empty for sqlite
	Username  string `json:"username"`
	Password  string `json:"password"` // "enc:"-tagged ciphertext at rest, never plaintext
	SSLMode   string `json:"sslMode"`
	ExtraJSON string `json:"extraJson"` // driver-specific options
}

// ConnectionDescriptor identifies a target database. The ID is immutable
// after creation and keys the live handle in the registry.
type ConnectionDescriptor struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Engine    Engine           `json:"engine"`
	Params    ConnectionParams `json:"params"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ConnectionStore manages CRUD operations for connection descriptors.
// The password column round-trips verbatim; encryption happens above this layer.
type ConnectionStore interface {
	CreateConnection(d *ConnectionDescriptor) error
	GetConnection(id string) (*ConnectionDescriptor, error)
	ListConnections() ([]ConnectionDescriptor, error)
	UpdateConnection(d *ConnectionDescriptor) error
	DeleteConnection(id string) error
}
