package remote

import (
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	driver:   "sqlite",
	bigText:  "TEXT",
	key:      "TEXT",
	seqCol:   "seq INTEGER PRIMARY KEY AUTOINCREMENT",
	upsert:   "ON CONFLICT (session_id) DO UPDATE SET state_json = excluded.state_json, version = excluded.version, op_seq = excluded.op_seq, updated_at = excluded.updated_at",
	maxConns: 1,
}

// sqliteDSN opens the shared file in WAL mode with a busy timeout so that
// several processes can write to it.
func sqliteDSN(conn Conn) string {
	if conn.DSN != "" {
		return conn.DSN
	}
	return conn.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
