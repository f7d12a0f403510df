package session

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

	_ "modernc.org/sqlite"

	"github.com/ido2103/openclaw/pkg/logx"
)

//go:embed migrations.sql
var migrations string

var ErrDisabled = errors.New("session store disabled")

// Config configures the route store.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "" or "none": disabled (Open returns nil, nil)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
	Retention   time.Duration // routes older than this are pruned; 0 keeps forever
}

// Route is the last-known delivery route of one session.
type Route struct {
	SessionKey string
	Channel    string
	Address    string
	AccountID  string
	ThreadID   string
	UpdatedAt  time.Time
}

// Store persists session routes. Safe for concurrent use.
type Store struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration
}

// Open initializes the configured store. Returns (nil, nil) when disabled.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, errors.New("unknown session store driver: " + driver)
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("session store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log, retention: cfg.Retention}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRoute upserts the last-known route for a session key.
func (s *Store) RecordRoute(ctx context.Context, r Route) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.SessionKey) == "" {
		return nil
	}
	at := r.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_routes(session_key, channel, address, account_id, thread_id, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   channel=excluded.channel, address=excluded.address,
		   account_id=excluded.account_id, thread_id=excluded.thread_id,
		   updated_at=excluded.updated_at`,
		r.SessionKey, r.Channel, r.Address, nullStr(r.AccountID), nullStr(r.ThreadID), at.UnixMilli(),
	)
	return err
}

// LastRoute returns the stored route for sessionKey, or nil when none.
func (s *Store) LastRoute(ctx context.Context, sessionKey string) (*Route, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var (
		r         Route
		acc, thr  sql.NullString
		updatedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_key, channel, address, account_id, thread_id, updated_at
		 FROM session_routes WHERE session_key = ?`, sessionKey,
	).Scan(&r.SessionKey, &r.Channel, &r.Address, &acc, &thr, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.AccountID = acc.String
	r.ThreadID = thr.String
	r.UpdatedAt = time.UnixMilli(updatedMs)
	return &r, nil
}

// Prune deletes routes not updated within the configured retention.
// No-op when retention is unset.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_routes WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
