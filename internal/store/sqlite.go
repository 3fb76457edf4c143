package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chimebot/internal/chat"
	"chimebot/internal/schedule"
	logx "chimebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeLayout = time.RFC3339

func (s *sqliteStore) Add(ctx context.Context, e Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	mention := e.Mention
	if mention == "" {
		mention = chat.MentionNone
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_events
		   (channel_ref, command, every_minutes, next_run, active,
		    schedule_anchor, schedule_expr, target_ref, mention_type, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		string(e.Channel), e.Command, e.EveryMinutes,
		e.NextRun.UTC().Format(timeLayout), boolInt(true),
		string(e.Anchor), e.Expr, e.Target, string(mention),
		created.Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Remove(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_events SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const eventColumns = `id, channel_ref, command, every_minutes, next_run, active,
	schedule_anchor, schedule_expr, target_ref, mention_type, created_at`

func (s *sqliteStore) List(ctx context.Context) ([]Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events
		 WHERE active = 1 ORDER BY next_run, id`)
}

func (s *sqliteStore) ListChannel(ctx context.Context, ref chat.ChannelRef) ([]Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events
		 WHERE active = 1 AND channel_ref = ? ORDER BY next_run, id`, string(ref))
}

func (s *sqliteStore) Due(ctx context.Context, now time.Time) ([]Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events
		 WHERE active = 1 AND next_run <= ? ORDER BY next_run, id`,
		now.UTC().Format(timeLayout))
}

func (s *sqliteStore) SetNextRun(ctx context.Context, id int64, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_events SET next_run = ? WHERE id = ?`,
		next.UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                  Event
			channel            string
			anchor, mention    string
			nextRun, createdAt string
			active             int
		)
		if err := rows.Scan(&e.ID, &channel, &e.Command, &e.EveryMinutes,
			&nextRun, &active, &anchor, &e.Expr, &e.Target, &mention, &createdAt); err != nil {
			return nil, err
		}
		e.Channel = chat.ChannelRef(channel)
		e.Active = active != 0
		e.Anchor = schedule.Anchor(anchor)
		e.Mention = chat.ParseMention(mention)
		if e.NextRun, err = time.Parse(timeLayout, nextRun); err != nil {
			// A corrupt timestamp should not hide the whole table; skip the
			// row but surface it.
			s.log.Warn("skipping event with corrupt next_run",
				logx.Int64("id", e.ID), logx.String("next_run", nextRun))
			continue
		}
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
