// Package reports holds chimebot's built-in action handlers: the reminder
// action and the weekly schedule digest posters. Richer renderers register
// through the same engine.Registry from outside.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chimebot/internal/chat"
	"chimebot/internal/engine"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

// Keys of the built-in actions.
const (
	KeyReminder    = "reminder"
	KeyWeeklyEmbed = "weekly_embed"
	KeyWeeklyImage = "weekly_image"
)

type Reports struct {
	store  store.Store
	sender chat.Sender
	log    logx.Logger
}

func New(st store.Store, sender chat.Sender, log logx.Logger) *Reports {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reports{store: st, sender: sender, log: log}
}

// RegisterAll binds every built-in action to the registry.
func (r *Reports) RegisterAll(reg *engine.Registry) error {
	for key, h := range map[string]engine.Handler{
		KeyReminder:    r.Reminder,
		KeyWeeklyEmbed: r.WeeklyDigest,
		KeyWeeklyImage: r.WeeklyDigest,
	} {
		if err := reg.Register(key, h); err != nil {
			return err
		}
	}
	return nil
}

// Reminder posts the event's payload text to its channel. The payload is the
// reminder text and is required.
func (r *Reports) Reminder(ctx context.Context, inv engine.Invocation) error {
	text := strings.TrimSpace(inv.Payload)
	if text == "" {
		return errors.New("reminder has no text payload")
	}
	return r.sender.Send(ctx, inv.Event.Channel, chat.EscapeText(text))
}

// WeeklyDigest posts a compact listing of the channel's upcoming scheduled
// runs. It backs both weekly report keys; image rendering stayed with the
// external renderers, so both keys produce the text digest here.
func (r *Reports) WeeklyDigest(ctx context.Context, inv engine.Invocation) error {
	text, err := r.RenderDigest(ctx, inv.Event.Channel)
	if err != nil {
		return err
	}
	return r.sender.Send(ctx, inv.Event.Channel, text)
}

// RenderDigest builds the digest text for one channel (or for all channels
// when ref is empty). Shared with the periodic digest service.
func (r *Reports) RenderDigest(ctx context.Context, ref chat.ChannelRef) (string, error) {
	var (
		events []store.Event
		err    error
	)
	if ref == "" {
		events, err = r.store.List(ctx)
	} else {
		events, err = r.store.ListChannel(ctx, ref)
	}
	if err != nil {
		return "", fmt.Errorf("listing events: %w", err)
	}

	var b strings.Builder
	b.WriteString("<b>Upcoming schedule</b>\n")
	if len(events) == 0 {
		b.WriteString("No scheduled events.")
		return b.String(), nil
	}
	for _, e := range events {
		b.WriteString(formatEventLine(e))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatEventLine(e store.Event) string {
	key := e.Command
	if k, _, ok := strings.Cut(e.Command, ":"); ok {
		key = k
	}
	when := e.NextRun.UTC().Format("Mon 2006-01-02 15:04 UTC")
	if e.Anchor != "" && e.Expr != "" {
		return fmt.Sprintf("- %s: %s (%s @ %s)", when, chat.EscapeText(key), e.Anchor, chat.EscapeText(e.Expr))
	}
	return fmt.Sprintf("- %s: %s (every %dm)", when, chat.EscapeText(key), e.EveryMinutes)
}
