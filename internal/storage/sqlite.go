package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"hydrobot/internal/domain"
	logx "hydrobot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	now    func() time.Time
	closed atomic.Bool
}

func openSQLite(cfg Config, log logx.Logger, now func() time.Time) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas applied and serializes writers.
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
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := canonicalizeMessageTypes(context.Background(), db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log, now: now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// canonicalizeMessageTypes rewrites legacy category keys in place. When both
// a legacy and a canonical row exist, the canonical row is kept.
func canonicalizeMessageTypes(ctx context.Context, db *sql.DB, log logx.Logger) error {
	rows, err := db.QueryContext(ctx, `SELECT message_type FROM custom_messages`)
	if err != nil {
		return fmt.Errorf("scan message types: %w", err)
	}
	var legacy []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan message type: %w", err)
		}
		if canonicalMessageKey(key) != key {
			legacy = append(legacy, key)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if len(legacy) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, key := range legacy {
		canonical := canonicalMessageKey(key)
		if _, err := tx.ExecContext(ctx,
			`UPDATE OR IGNORE custom_messages SET message_type = ? WHERE message_type = ?`, canonical, key); err != nil {
			return fmt.Errorf("canonicalize %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM custom_messages WHERE message_type = ?`, key); err != nil {
			return fmt.Errorf("drop shadowed %q: %w", key, err)
		}
		log.Info("custom message key canonicalized", logx.String("from", key), logx.String("to", canonical))
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]domain.Subscriber, []domain.CustomMessage, error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	now := s.now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, frequency, last_notified_at, created_at FROM subscribers`)
	if err != nil {
		return nil, nil, fmt.Errorf("load subscribers: %w", err)
	}
	var subs []domain.Subscriber
	for rows.Next() {
		var r subscriberRow
		if err := rows.Scan(&r.UserID, &r.DisplayName, &r.Frequency, &r.LastNotifiedAt, &r.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, decodeSubscriber(r, now, s.log))
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}
	sortSubscribers(subs)

	msgs, err := s.ListCustomMessages(ctx)
	if err != nil {
		return nil, nil, err
	}
	return subs, msgs, nil
}

func (s *sqliteStore) UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error {
	if s.closed.Load() {
		return ErrClosed
	}
	r := encodeSubscriber(sub, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(user_id, display_name, frequency, last_notified_at, created_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   frequency = excluded.frequency,
		   last_notified_at = excluded.last_notified_at`,
		r.UserID, r.DisplayName, r.Frequency, r.LastNotifiedAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscriber %d: %w", sub.ID, err)
	}
	return nil
}

func (s *sqliteStore) DeleteSubscriber(ctx context.Context, userID int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete subscriber %d: %w", userID, err)
	}
	return nil
}

func (s *sqliteStore) UpsertCustomMessage(ctx context.Context, m domain.CustomMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	r := encodeMessage(m, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_messages(message_type, text, author_id, created_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(message_type) DO UPDATE SET
		   text = excluded.text,
		   author_id = excluded.author_id,
		   created_at = excluded.created_at`,
		r.Type, r.Text, r.AuthorID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert custom message %s: %w", m.Type, err)
	}
	return nil
}

func (s *sqliteStore) DeleteCustomMessage(ctx context.Context, t domain.MessageType) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_messages WHERE message_type = ?`, string(t))
	if err != nil {
		return false, fmt.Errorf("delete custom message %s: %w", t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) GetCustomMessage(ctx context.Context, t domain.MessageType) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM custom_messages WHERE message_type = ?`, string(t)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get custom message %s: %w", t, err)
	}
	return text, true, nil
}

func (s *sqliteStore) ListCustomMessages(ctx context.Context) ([]domain.CustomMessage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT message_type, text, author_id, created_at FROM custom_messages`)
	if err != nil {
		return nil, fmt.Errorf("list custom messages: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomMessage
	for rows.Next() {
		var r messageRow
		if err := rows.Scan(&r.Type, &r.Text, &r.AuthorID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom message: %w", err)
		}
		if m, ok := decodeMessage(r, s.log); ok {
			out = append(out, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortMessages(out)
	return out, nil
}
