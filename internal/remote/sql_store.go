package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"whiteboard/internal/domain"
)

// dialect holds the per-driver SQL differences. Queries are written with
// '?' placeholders and rebound for drivers that number them.
type dialect struct {
	driver      string
	bigText     string
	key         string
	seqCol      string
	upsert      string
	dollarParam bool
	maxConns    int
}

func (d dialect) rebind(q string) string {
	if !d.dollarParam {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS board_snapshots (
			session_id %s PRIMARY KEY,
			state_json %s NOT NULL,
			version    BIGINT NOT NULL DEFAULT 0,
			op_seq     BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL
		)`, d.key, d.bigText),
	}
	if d.driver == "mysql" {
		return append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS board_ops (
			%s,
			op_id      VARCHAR(64) NOT NULL,
			session_id %s NOT NULL,
			op_json    %s NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_board_ops_session (session_id, seq)
		)`, d.seqCol, d.key, d.bigText))
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS board_ops (
			%s,
			op_id      TEXT NOT NULL,
			session_id %s NOT NULL,
			op_json    %s NOT NULL,
			created_at BIGINT NOT NULL
		)`, d.seqCol, d.key, d.bigText),
		`CREATE INDEX IF NOT EXISTS idx_board_ops_session ON board_ops(session_id, seq)`,
	)
}

// sqlStore keeps snapshots and the operation log in a SQL database.
type sqlStore struct {
	d   dialect
	db  *sql.DB
	now func() time.Time
}

func openSQL(ctx context.Context, d dialect, dsn string) (*sqlStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.maxConns > 0 {
		db.SetMaxOpenConns(d.maxConns)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	s := &sqlStore{d: d, db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.driver, err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// FetchSnapshot returns an empty board when nothing is stored for the
// session.
func (s *sqlStore) FetchSnapshot(ctx context.Context, sessionID string) (*domain.BoardState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT state_json FROM board_snapshots WHERE session_id = ?`), sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.BoardState{SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	var state domain.BoardState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &state, nil
}

// SaveSnapshot upserts the board and marks every logged operation up to now
// as folded into it.
func (s *sqlStore) SaveSnapshot(ctx context.Context, sessionID string, state *domain.BoardState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		s.d.rebind(`SELECT COALESCE(MAX(seq), 0) FROM board_ops WHERE session_id = ?`), sessionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("read op seq: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.d.rebind(
		`INSERT INTO board_snapshots (session_id, state_json, version, op_seq, updated_at) VALUES (?, ?, ?, ?, ?) `+s.d.upsert),
		sessionID, string(raw), state.Version, seq, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return tx.Commit()
}

// SubmitOperations appends ops to the log in one transaction.
func (s *sqlStore) SubmitOperations(ctx context.Context, sessionID string, ops []domain.BoardOperation) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.d.rebind(
		`INSERT INTO board_ops (op_id, session_id, op_json, created_at) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UnixMilli()
	for _, op := range ops {
		raw, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encode operation %s: %w", op.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, op.ID, sessionID, string(raw), now); err != nil {
			return fmt.Errorf("insert operation %s: %w", op.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Backlog(ctx context.Context, sessionID string) ([]domain.BoardOperation, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT op_json FROM board_ops
		WHERE session_id = ? AND seq > COALESCE((SELECT op_seq FROM board_snapshots WHERE session_id = ?), 0)
		ORDER BY seq`), sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	defer rows.Close()

	var raws []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan backlog: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return decodeOps(raws)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func decodeOps(raws []string) ([]domain.BoardOperation, error) {
	var firstErr error
	ops := lo.FilterMap(raws, func(raw string, _ int) (domain.BoardOperation, bool) {
		var op domain.BoardOperation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode operation: %w", err)
			}
			return op, false
		}
		return op, true
	})
	return ops, firstErr
}
