package reports

import (
	"context"
	"strings"
	"testing"
	"time"

	"chimebot/internal/chat"
	"chimebot/internal/engine"
	"chimebot/internal/schedule"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

func newReports(t *testing.T) (*Reports, *store.Memory, *chat.Recorder) {
	t.Helper()
	st := store.NewMemory()
	rec := chat.NewRecorder()
	return New(st, rec, logx.Nop()), st, rec
}

func invocation(channel, command, payload string) engine.Invocation {
	key := command
	if k, _, ok := strings.Cut(command, ":"); ok {
		key = k
	}
	return engine.Invocation{
		Event:   store.Event{Channel: chat.ChannelRef(channel), Command: command},
		Key:     key,
		Payload: payload,
	}
}

func TestReminder(t *testing.T) {
	t.Parallel()
	r, _, rec := newReports(t)

	err := r.Reminder(context.Background(), invocation("100", "reminder:drink water", "drink water"))
	if err != nil {
		t.Fatalf("Reminder: %v", err)
	}
	sent := rec.Sent()
	if len(sent) != 1 || sent[0].Text != "drink water" || sent[0].Ref != "100" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestReminderEscapesMarkup(t *testing.T) {
	t.Parallel()
	r, _, rec := newReports(t)

	err := r.Reminder(context.Background(), invocation("100", "reminder:a<b", "a<b"))
	if err != nil {
		t.Fatalf("Reminder: %v", err)
	}
	if got := rec.Sent()[0].Text; got != "a&lt;b" {
		t.Fatalf("reminder text = %q, want escaped markup", got)
	}
}

func TestReminderRequiresPayload(t *testing.T) {
	t.Parallel()
	r, _, _ := newReports(t)
	if err := r.Reminder(context.Background(), invocation("100", "reminder", "")); err == nil {
		t.Fatal("empty payload accepted")
	}
	if err := r.Reminder(context.Background(), invocation("100", "reminder:  ", "  ")); err == nil {
		t.Fatal("blank payload accepted")
	}
}

func TestWeeklyDigest(t *testing.T) {
	t.Parallel()
	r, st, rec := newReports(t)
	ctx := context.Background()

	next := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	if _, err := st.Add(ctx, store.Event{
		Channel: "100",
		Command: "weekly_embed",
		NextRun: next,
		Anchor:  schedule.AnchorWeek,
		Expr:    "w1@d2h10",
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := st.Add(ctx, store.Event{
		Channel:      "200",
		Command:      "reminder:other channel",
		NextRun:      next,
		EveryMinutes: 60,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := r.WeeklyDigest(ctx, invocation("100", "weekly_embed", ""))
	if err != nil {
		t.Fatalf("WeeklyDigest: %v", err)
	}
	sent := rec.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	text := sent[0].Text
	if !strings.Contains(text, "Upcoming schedule") {
		t.Fatalf("digest missing header: %q", text)
	}
	if !strings.Contains(text, "weekly_embed") || !strings.Contains(text, "w1@d2h10") {
		t.Fatalf("digest missing event detail: %q", text)
	}
	if strings.Contains(text, "other channel") {
		t.Fatalf("digest leaked another channel's event: %q", text)
	}
}

func TestRenderDigestEmpty(t *testing.T) {
	t.Parallel()
	r, _, _ := newReports(t)
	text, err := r.RenderDigest(context.Background(), "100")
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}
	if !strings.Contains(text, "No scheduled events") {
		t.Fatalf("empty digest = %q", text)
	}
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()
	r, _, _ := newReports(t)
	reg := engine.NewRegistry()
	if err := r.RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	for _, key := range []string{KeyReminder, KeyWeeklyEmbed, KeyWeeklyImage} {
		if _, ok := reg.Lookup(key); !ok {
			t.Fatalf("key %q not registered", key)
		}
	}
}
