package engine

import (
	"context"
	"time"

	"chimebot/internal/chat"
	"chimebot/internal/eventbus"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

// Config controls the polling loop.
type Config struct {
	// PollInterval is the wait between ticks. Defaults to one minute,
	// floors at one second.
	PollInterval time.Duration
}

func (c Config) pollInterval() time.Duration {
	switch {
	case c.PollInterval <= 0:
		return time.Minute
	case c.PollInterval < time.Second:
		return time.Second
	default:
		return c.PollInterval
	}
}

// Deps wires the engine's collaborators. Store, Messenger, and Registry are
// required; Bus and Clock are optional (Clock defaults to time.Now and exists
// for tests).
type Deps struct {
	Store     store.Store
	Messenger chat.Messenger
	Registry  *Registry
	Log       logx.Logger
	Bus       eventbus.Bus
	Clock     func() time.Time
}

// Invocation is what a handler receives for one due event: the event row,
// the resolved dispatch key, and the split payload. Handlers never re-parse
// Command.
type Invocation struct {
	Event   store.Event
	Key     string
	Payload string
}

// Handler executes one scheduled action.
type Handler func(ctx context.Context, inv Invocation) error

// Bus topics published by the engine.
const (
	TopicDispatched = "engine.dispatched"
	TopicSkipped    = "engine.skipped"
)

// legacyAliases maps command strings from older deployments to current
// registry keys. Applied to the full command before the key/payload split.
var legacyAliases = map[string]string{
	"/report weekly": "weekly_image",
	"/report embed":  "weekly_embed",
}
