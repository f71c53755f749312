package remote

import (
	"context"
	"fmt"

	"whiteboard/internal/domain"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverMongoDB  Driver = "mongodb"
)

// Conn describes the shared database that holds board snapshots and the
// operation log. DSN, when set, is used as-is; otherwise one is built from
// the discrete fields. For SQLite, Host is the file path.
type Conn struct {
	Driver   Driver `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"dsn,omitempty"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port,omitempty"`
	Database string `yaml:"database" json:"database,omitempty"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"-"`
	SSLMode  string `yaml:"ssl_mode" json:"sslMode,omitempty"`
}

// Store is a remote board backend: a snapshot store plus the sync service
// the offline queue drains into.
type Store interface {
	domain.SnapshotStore
	domain.SyncService

	// Backlog returns operations submitted after the stored snapshot was
	// written, oldest first.
	Backlog(ctx context.Context, sessionID string) ([]domain.BoardOperation, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the Store for conn.Driver and makes sure its schema exists.
func Open(ctx context.Context, conn Conn) (Store, error) {
	switch conn.Driver {
	case DriverSQLite:
		return openSQL(ctx, sqliteDialect, sqliteDSN(conn))
	case DriverMySQL:
		return openSQL(ctx, mysqlDialect, mysqlDSN(conn))
	case DriverPostgres:
		return openSQL(ctx, postgresDialect, postgresDSN(conn))
	case DriverMongoDB:
		return openMongo(ctx, conn)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrValidation, conn.Driver)
	}
}
