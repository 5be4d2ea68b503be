package dbclient

import (
	"context"
	"fmt"

	"dbdeck/internal/domain"

	_ "github.com/lib/pq"
)

// postgresAdapter opens pooled handles: multiple physical sockets, safe for
// concurrent queries on one descriptor.
type postgresAdapter struct{}

func (postgresAdapter) Engine() domain.Engine { return domain.EnginePostgres }

func (postgresAdapter) TestConnect(ctx context.Context, desc *domain.ConnectionDescriptor, password string) error {
	return probeSQL(ctx, domain.EnginePostgres, "postgres", buildPostgresDSN(desc, password))
}

func (postgresAdapter) Open(ctx context.Context, desc *domain.ConnectionDescriptor, password string) (Handle, error) {
	return openSQLHandle(ctx, domain.EnginePostgres, "postgres", buildPostgresDSN(desc, password), 5)
}

// buildPostgresDSN constructs a Postgres connection string from a descriptor.
func buildPostgresDSN(desc *domain.ConnectionDescriptor, password string) string {
	p := desc.Params
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, port, p.Username, password, p.Database, sslMode,
	)
}
