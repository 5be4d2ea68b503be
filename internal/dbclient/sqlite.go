package dbclient

import (
	"context"

	"dbdeck/internal/domain"

	_ "modernc.org/sqlite"
)

// sqliteAdapter opens an embedded handle. SQLite serializes queries on the
// calling side, so the pool is capped to one connection. Opens in WAL mode
// with a busy timeout so an external writer doesn't surface SQLITE_BUSY.
type sqliteAdapter struct{}

func (sqliteAdapter) Engine() domain.Engine { return domain.EngineSQLite }

func (sqliteAdapter) TestConnect(ctx context.Context, desc *domain.ConnectionDescriptor, password string) error {
	return probeSQL(ctx, domain.EngineSQLite, "sqlite", buildSQLiteDSN(desc))
}

func (sqliteAdapter) Open(ctx context.Context, desc *domain.ConnectionDescriptor, password string) (Handle, error) {
	return openSQLHandle(ctx, domain.EngineSQLite, "sqlite", buildSQLiteDSN(desc), 1)
}

// buildSQLiteDSN treats Host as the database file path.
func buildSQLiteDSN(desc *domain.ConnectionDescriptor) string {
	return desc.Params.Host + "?_journal_mode=WAL&_busy_timeout=5000"
}
