package dbclient

import (
	"context"
	"fmt"

	"dbdeck/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

// mysqlAdapter opens a single serialized session; concurrent queries against
// the same descriptor queue behind one connection. Callers may observe
// queuing delay, which is expected and not a hang.
type mysqlAdapter struct{}

func (mysqlAdapter) Engine() domain.Engine { return domain.EngineMySQL }

func (mysqlAdapter) TestConnect(ctx context.Context, desc *domain.ConnectionDescriptor, password string) error {
	return probeSQL(ctx, domain.EngineMySQL, "mysql", buildMySQLDSN(desc, password))
}

func (mysqlAdapter) Open(ctx context.Context, desc *domain.ConnectionDescriptor, password string) (Handle, error) {
	return openSQLHandle(ctx, domain.EngineMySQL, "mysql", buildMySQLDSN(desc, password), 1)
}

// buildMySQLDSN constructs a MySQL DSN from a descriptor.
// Format: user:password@tcp(host:port)/dbname?parseTime=true
func buildMySQLDSN(desc *domain.ConnectionDescriptor, password string) string {
	p := desc.Params
	port := p.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		p.Username, password, p.Host, port, p.Database,
	)
	if p.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
