// Package store persists chimebot's scheduled events.
//
// The engine is the only writer during normal operation: it reads due events
// and rewrites their next-run instants. Management operations (add, remove,
// deactivate, list) are part of the same contract so any front-end shares one
// store surface.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"chimebot/internal/chat"
	"chimebot/internal/schedule"
)

var (
	// ErrNotFound is returned when an event id does not exist (or is already
	// deactivated, for operations that only touch active rows).
	ErrNotFound = errors.New("event not found")
)

// Event is one scheduled action.
//
// Anchored events carry Anchor + Expr and repeat on calendar-aligned
// instants. Legacy events carry only EveryMinutes and repeat flatly from
// each execution.
type Event struct {
	ID      int64
	Channel chat.ChannelRef

	// Command is "<key>" or "<key>:<payload>". The key resolves the action
	// handler; the payload travels through opaquely.
	Command string

	// EveryMinutes is the flat repeat interval, also the fallback when an
	// anchored expression turns out to be malformed. Minimum effective value
	// is one minute.
	EveryMinutes int

	// NextRun is UTC with minute precision. Invariant: it always means "not
	// yet executed as of the last write".
	NextRun time.Time

	Active bool

	Anchor schedule.Anchor // empty for legacy flat-interval events
	Expr   string          // "<interval>[@<offset>]", empty for legacy events

	Target  string // mention target ref; used when Mention == MentionUser
	Mention chat.Mention

	CreatedAt time.Time
}

// Validate checks the fields a caller must fill before Add.
func (e Event) Validate() error {
	if strings.TrimSpace(string(e.Channel)) == "" {
		return errors.New("event channel is required")
	}
	if strings.TrimSpace(e.Command) == "" {
		return errors.New("event command is required")
	}
	if e.NextRun.IsZero() {
		return errors.New("event next run must be precomputed")
	}
	return nil
}

// Store is the persistence contract for scheduled events.
//
// Due and SetNextRun are the loop's hot path; the rest are management
// operations. All reads return active events only.
type Store interface {
	// Add persists a new event and returns its id. NextRun must already be
	// computed by the caller (fail fast on bad expressions, nothing persists).
	Add(ctx context.Context, e Event) (int64, error)

	// Remove hard-deletes an event. ErrNotFound when absent.
	Remove(ctx context.Context, id int64) error

	// Deactivate soft-deletes an event. ErrNotFound when absent.
	Deactivate(ctx context.Context, id int64) error

	// List returns active events ordered by NextRun, then id.
	List(ctx context.Context) ([]Event, error)

	// ListChannel returns active events for one channel, same order.
	ListChannel(ctx context.Context, ref chat.ChannelRef) ([]Event, error)

	// Due returns active events with NextRun <= now, ordered by NextRun,
	// then id. The store performs the filter so a tick never loads the full
	// event set.
	Due(ctx context.Context, now time.Time) ([]Event, error)

	// SetNextRun rewrites one event's next-run instant.
	SetNextRun(ctx context.Context, id int64, next time.Time) error

	Close() error
}

// Config selects and configures the store driver.
//
// Driver values:
//   - "sqlite" (default): SQLite database file via modernc.org/sqlite
//   - "memory": process-local, for tests and ephemeral runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
