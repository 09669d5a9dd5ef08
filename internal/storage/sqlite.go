package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	logx "stockalert/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; this is the per-table single-writer lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddSubscription(ctx context.Context, userID int64, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, symbol, created_at) VALUES(?,?,?)
		 ON CONFLICT(user_id, symbol) DO NOTHING`,
		userID, symbol, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *sqliteStore) RemoveSubscription(ctx context.Context, userID int64, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ? AND symbol = ?`, userID, symbol)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, symbol, created_at FROM subscriptions ORDER BY user_id, created_at, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var created int64
		if err := rows.Scan(&sub.UserID, &sub.Symbol, &created); err != nil {
			return nil, err
		}
		sub.CreatedAt = time.UnixMilli(created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetBroadcast(ctx context.Context, userID int64, on bool) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if on {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO broadcast_optins(user_id, created_at) VALUES(?,?) ON CONFLICT(user_id) DO NOTHING`,
			userID, time.Now().UnixMilli(),
		)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM broadcast_optins WHERE user_id = ?`, userID)
	}
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *sqliteStore) ListBroadcast(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM broadcast_optins ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertThresholdAlert(ctx context.Context, a ThresholdAlert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO threshold_alerts(user_id, symbol, comparison, threshold, kind, created_at) VALUES(?,?,?,?,?,?)`,
		a.UserID, a.Symbol, a.Comparison, a.Threshold.String(), a.Kind, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListThresholdAlerts(ctx context.Context, userID int64) ([]ThresholdAlert, error) {
	q := `SELECT id, user_id, symbol, comparison, threshold, kind, created_at FROM threshold_alerts`
	var args []any
	if userID != 0 {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThresholdAlert
	for rows.Next() {
		var a ThresholdAlert
		var thr string
		var created int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Comparison, &thr, &a.Kind, &created); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(thr)
		if err != nil {
			s.log.Warn("threshold alert has invalid threshold; skipping", logx.Int64("id", a.ID), logx.Err(err))
			continue
		}
		a.Threshold = d
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteThresholdAlert(ctx context.Context, id, userID int64) (bool, error) {
	q := `DELETE FROM threshold_alerts WHERE id = ?`
	args := []any{id}
	if userID != 0 {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	if r.DeliveredAt.IsZero() {
		r.DeliveredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(user_id, symbol, headline, link, source_id, item_key, delivered_at, ok)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.UserID, r.Symbol, r.Headline, nullStr(r.Link), r.SourceID, r.ItemKey, r.DeliveredAt.UnixMilli(), boolInt(r.OK),
	)
	return err
}

func (s *sqliteStore) ListDeliveries(ctx context.Context, from, to time.Time, userID int64) ([]DeliveryRecord, error) {
	if !validRange(from, to) {
		return nil, fmt.Errorf("invalid range %s..%s", from, to)
	}
	q := `SELECT id, user_id, symbol, headline, COALESCE(link, ''), source_id, item_key, delivered_at, ok
	      FROM deliveries WHERE delivered_at >= ? AND delivered_at < ?`
	args := []any{from.UnixMilli(), to.UnixMilli()}
	if userID != 0 {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY delivered_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		var at int64
		var ok int
		if err := rows.Scan(&r.ID, &r.UserID, &r.Symbol, &r.Headline, &r.Link, &r.SourceID, &r.ItemKey, &at, &ok); err != nil {
			return nil, err
		}
		r.DeliveredAt = time.UnixMilli(at)
		r.OK = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetCursor(ctx context.Context, sourceID string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT last_key FROM source_cursors WHERE source_id = ?`, sourceID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (s *sqliteStore) PutCursor(ctx context.Context, sourceID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_cursors(source_id, last_key, updated_at) VALUES(?,?,?)
		 ON CONFLICT(source_id) DO UPDATE SET last_key = excluded.last_key, updated_at = excluded.updated_at`,
		sourceID, key, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, action, target, err, took_ms) VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, e.ChatID, e.Action, nullStr(e.Target), nullStr(e.Error), e.TookMS,
	)
	return err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
