package remote

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	driver:  "mysql",
	bigText: "LONGTEXT",
	key:     "VARCHAR(64)",
	seqCol:  "seq BIGINT AUTO_INCREMENT PRIMARY KEY",
	upsert:  "ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), version = VALUES(version), op_seq = VALUES(op_seq), updated_at = VALUES(updated_at)",
}

func mysqlDSN(conn Conn) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		conn.Username, conn.Password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
