package remote

import (
	"fmt"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	driver:      "postgres",
	bigText:     "TEXT",
	key:         "TEXT",
	seqCol:      "seq BIGSERIAL PRIMARY KEY",
	upsert:      "ON CONFLICT (session_id) DO UPDATE SET state_json = EXCLUDED.state_json, version = EXCLUDED.version, op_seq = EXCLUDED.op_seq, updated_at = EXCLUDED.updated_at",
	dollarParam: true,
}

func postgresDSN(conn Conn) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, conn.Password, conn.Database, sslMode,
	)
}
