package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/ringflow/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Waiting pool ---

// AddWaiting inserts (or re-scores) pool entries and writes their metadata
// in a single transaction.
func (s *SQLiteStore) AddWaiting(ctx context.Context, items []WaitingItem) error {
	if len(items) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "waiting", "count", len(items))

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for _, it := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO waiting (code, score, added_at) VALUES (?, ?, ?)
				 ON CONFLICT(code) DO UPDATE SET score = excluded.score`,
				it.Code, it.Score, now,
			); err != nil {
				return fmt.Errorf("insert waiting %s: %w", it.Code, err)
			}
			if err := putFields(ctx, tx, it.Code, it.Fields); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) WaitingScore(ctx context.Context, code string) (float64, bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "waiting", "code", code)

	var score float64
	err := s.db.QueryRowContext(ctx, `SELECT score FROM waiting WHERE code = ?`, code).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// RangeWaiting lists members by score. Equal scores are ordered by insertion
// time so that earlier submissions come first in either direction.
func (s *SQLiteStore) RangeWaiting(ctx context.Context, q RangeQuery) ([]Member, error) {
	s.logger.Debug("sql", "op", "range", "table", "waiting", "desc", q.Desc, "limit", q.Limit)

	query := `SELECT code, score FROM waiting WHERE 1=1`
	var args []any
	if q.Min != nil {
		query += ` AND score >= ?`
		args = append(args, *q.Min)
	}
	if q.Max != nil {
		query += ` AND score <= ?`
		args = append(args, *q.Max)
	}
	if q.Desc {
		query += ` ORDER BY score DESC, added_at ASC, code ASC`
	} else {
		query += ` ORDER BY score ASC, added_at ASC, code ASC`
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

// PopWaiting removes and returns up to n members from one end of the pool.
// Their metadata is left in place for the caller to consume.
func (s *SQLiteStore) PopWaiting(ctx context.Context, n int, desc bool) ([]Member, error) {
	if n <= 0 {
		return nil, nil
	}
	s.logger.Debug("sql", "op", "pop", "table", "waiting", "n", n, "desc", desc)

	order := "score ASC, added_at ASC, code ASC"
	if desc {
		order = "score DESC, added_at ASC, code ASC"
	}

	var popped []Member
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT code, score FROM waiting ORDER BY `+order+` LIMIT ?`, n)
		if err != nil {
			return err
		}
		members, err := scanMembers(rows)
		rows.Close()
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, err := tx.ExecContext(ctx, `DELETE FROM waiting WHERE code = ?`, m.Code); err != nil {
				return err
			}
		}
		popped = members
		return nil
	})
	return popped, err
}

// RemoveWaiting deletes a pool entry. It reports false when the entry was
// already gone, so concurrent removers can tell who won.
func (s *SQLiteStore) RemoveWaiting(ctx context.Context, code string) (bool, error) {
	s.logger.Debug("sql", "op", "delete", "table", "waiting", "code", code)

	res, err := s.db.ExecContext(ctx, `DELETE FROM waiting WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// TakeWaiting removes a pool entry and its metadata in one transaction.
// Metadata is only deleted when this call removed the pool entry.
func (s *SQLiteStore) TakeWaiting(ctx context.Context, code string) (bool, error) {
	s.logger.Debug("sql", "op", "take", "table", "waiting", "code", code)

	var removed bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM waiting WHERE code = ?`, code)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		removed = true
		_, err = tx.ExecContext(ctx, `DELETE FROM task_meta WHERE code = ?`, code)
		return err
	})
	return removed, err
}

func (s *SQLiteStore) CountWaiting(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waiting`).Scan(&n)
	return n, err
}

// --- Task metadata ---

func (s *SQLiteStore) PutMetadata(ctx context.Context, code string, fields map[string]string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "task_meta", "code", code, "fields", len(fields))
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return putFields(ctx, tx, code, fields)
	})
}

// GetMetadata reads the records of many instructions in one query. Codes
// without any metadata are absent from the result.
func (s *SQLiteStore) GetMetadata(ctx context.Context, codes []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	s.logger.Debug("sql", "op", "select_batch", "table", "task_meta", "count", len(codes))

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, field, value FROM task_meta WHERE code IN (`+placeholders(len(codes))+`)`,
		stringArgs(codes)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code, field, value string
		if err := rows.Scan(&code, &field, &value); err != nil {
			return nil, err
		}
		rec, ok := out[code]
		if !ok {
			rec = make(map[string]string)
			out[code] = rec
		}
		rec[field] = value
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMetadata(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "delete", "table", "task_meta", "count", len(codes))
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_meta WHERE code IN (`+placeholders(len(codes))+`)`,
		stringArgs(codes)...,
	)
	return err
}

// --- Statistics ---

func (s *SQLiteStore) GetStat(ctx context.Context, key string) (model.Stat, bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "stats", "key", key)

	var st model.Stat
	err := s.db.QueryRowContext(ctx,
		`SELECT ema1, ema2, mean, std, count FROM stats WHERE key = ?`, key,
	).Scan(&st.EMA1, &st.EMA2, &st.Mean, &st.Std, &st.Count)
	if err == sql.ErrNoRows {
		return model.Stat{}, false, nil
	}
	if err != nil {
		return model.Stat{}, false, err
	}
	return st, true, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context, keys []string) (map[string]model.Stat, error) {
	out := make(map[string]model.Stat, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	s.logger.Debug("sql", "op", "select_batch", "table", "stats", "count", len(keys))

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, ema1, ema2, mean, std, count FROM stats WHERE key IN (`+placeholders(len(keys))+`)`,
		stringArgs(keys)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStats(rows, out)
}

// ListStats returns every statistic whose key starts with prefix.
func (s *SQLiteStore) ListStats(ctx context.Context, prefix string) (map[string]model.Stat, error) {
	s.logger.Debug("sql", "op", "list", "table", "stats", "prefix", prefix)

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, ema1, ema2, mean, std, count FROM stats WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStats(rows, make(map[string]model.Stat))
}

func (s *SQLiteStore) PutStat(ctx context.Context, key string, st model.Stat) error {
	s.logger.Debug("sql", "op", "upsert", "table", "stats", "key", key)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stats (key, ema1, ema2, mean, std, count, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   ema1 = excluded.ema1, ema2 = excluded.ema2, mean = excluded.mean,
		   std = excluded.std, count = excluded.count, updated_at = excluded.updated_at`,
		key, st.EMA1, st.EMA2, st.Mean, st.Std, st.Count, time.Now().UnixMilli(),
	)
	return err
}

// --- Node availability ---

func (s *SQLiteStore) GetNodeAvailability(ctx context.Context, node string) (int64, bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "node_availability", "node", node)

	var at int64
	err := s.db.QueryRowContext(ctx,
		`SELECT available_at FROM node_availability WHERE node = ?`, node,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return at, true, nil
}

func (s *SQLiteStore) SetNodeAvailability(ctx context.Context, node string, at int64) error {
	s.logger.Debug("sql", "op", "upsert", "table", "node_availability", "node", node, "at", at)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_availability (node, available_at) VALUES (?, ?)
		 ON CONFLICT(node) DO UPDATE SET available_at = excluded.available_at`,
		node, at,
	)
	return err
}

// --- Start markers ---

// MarkStarted records the start of an instruction if nobody has yet. It
// returns true only for the first caller.
func (s *SQLiteStore) MarkStarted(ctx context.Context, code string, at int64) (bool, error) {
	s.logger.Debug("sql", "op", "insert_if_absent", "table", "start_markers", "code", code)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO start_markers (code, started_at) VALUES (?, ?) ON CONFLICT(code) DO NOTHING`,
		code, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) GetStartMarker(ctx context.Context, code string) (int64, bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM start_markers WHERE code = ?`, code).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return at, true, nil
}

// errNotStarted rolls back a StartInstruction transaction that lost.
var errNotStarted = errors.New("instruction not started")

// StartInstruction admits a waiting instruction in one transaction: it writes
// the start marker, removes the pool entry and its metadata, and stores the
// destination's availability. It reports false and changes nothing when the
// instruction already has a start marker or is no longer waiting.
func (s *SQLiteStore) StartInstruction(ctx context.Context, code string, at int64, node string, availableAt int64) (bool, error) {
	s.logger.Debug("sql", "op", "start", "code", code, "node", node, "available_at", availableAt)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := execCount(ctx, tx,
			`INSERT INTO start_markers (code, started_at) VALUES (?, ?) ON CONFLICT(code) DO NOTHING`,
			code, at)
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotStarted
		}
		n, err = execCount(ctx, tx, `DELETE FROM waiting WHERE code = ?`, code)
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotStarted
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_meta WHERE code = ?`, code); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO node_availability (node, available_at) VALUES (?, ?)
			 ON CONFLICT(node) DO UPDATE SET available_at = excluded.available_at`,
			node, availableAt,
		)
		return err
	})
	if errors.Is(err, errNotStarted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetDuration stores the elapsed time of a finished instruction on its start marker.
func (s *SQLiteStore) SetDuration(ctx context.Context, code string, durationMs int64) error {
	s.logger.Debug("sql", "op", "update", "table", "start_markers", "code", code)
	_, err := s.db.ExecContext(ctx,
		`UPDATE start_markers SET duration_ms = ? WHERE code = ?`, durationMs, code)
	return err
}

// --- Container continuity ---

func (s *SQLiteStore) GetContainerLast(ctx context.Context, container string) (model.ContainerLast, bool, error) {
	var last model.ContainerLast
	err := s.db.QueryRowContext(ctx,
		`SELECT last_finish, last_to FROM container_last WHERE container = ?`, container,
	).Scan(&last.LastFinish, &last.LastTo)
	if err == sql.ErrNoRows {
		return model.ContainerLast{}, false, nil
	}
	if err != nil {
		return model.ContainerLast{}, false, err
	}
	return last, true, nil
}

func (s *SQLiteStore) PutContainerLast(ctx context.Context, container string, last model.ContainerLast) error {
	s.logger.Debug("sql", "op", "upsert", "table", "container_last", "container", container)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO container_last (container, last_finish, last_to) VALUES (?, ?, ?)
		 ON CONFLICT(container) DO UPDATE SET last_finish = excluded.last_finish, last_to = excluded.last_to`,
		container, last.LastFinish, last.LastTo,
	)
	return err
}

// --- Maintenance ---

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.logger.Debug("sql", "op", "clear")
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"waiting", "task_meta", "start_markers"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// --- helpers ---

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func putFields(ctx context.Context, tx *sql.Tx, code string, fields map[string]string) error {
	for field, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_meta (code, field, value) VALUES (?, ?, ?)
			 ON CONFLICT(code, field) DO UPDATE SET value = excluded.value`,
			code, field, value,
		); err != nil {
			return fmt.Errorf("insert metadata %s.%s: %w", code, field, err)
		}
	}
	return nil
}

func scanMembers(rows *sql.Rows) ([]Member, error) {
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Code, &m.Score); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func scanStats(rows *sql.Rows, out map[string]model.Stat) (map[string]model.Stat, error) {
	for rows.Next() {
		var key string
		var st model.Stat
		if err := rows.Scan(&key, &st.EMA1, &st.EMA2, &st.Mean, &st.Std, &st.Count); err != nil {
			return nil, err
		}
		out[key] = st
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
