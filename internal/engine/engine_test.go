package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chimebot/internal/chat"
	"chimebot/internal/schedule"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

func utc(day, hour, min int) time.Time {
	return time.Date(2025, 9, day, hour, min, 0, 0, time.UTC)
}

type fixture struct {
	svc      *Service
	store    *store.Memory
	recorder *chat.Recorder
	registry *Registry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		recorder: chat.NewRecorder(),
		registry: NewRegistry(),
		now:      utc(4, 12, 0), // Thursday noon
	}
	svc, err := New(Config{PollInterval: time.Hour}, Deps{
		Store:     f.store,
		Messenger: f.recorder,
		Registry:  f.registry,
		Log:       logx.Nop(),
		Clock:     func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addEvent(t *testing.T, ev store.Event) int64 {
	t.Helper()
	if ev.Channel == "" {
		ev.Channel = "100"
	}
	if ev.NextRun.IsZero() {
		ev.NextRun = f.now.Add(-time.Minute)
	}
	id, err := f.store.Add(context.Background(), ev)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return id
}

func (f *fixture) nextRun(t *testing.T, id int64) time.Time {
	t.Helper()
	events, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range events {
		if e.ID == id {
			return e.NextRun
		}
	}
	t.Fatalf("event %d not found", id)
	return time.Time{}
}

func TestTickDispatchesAndReschedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var calls atomic.Int64
	_ = f.registry.Register("weekly_embed", func(ctx context.Context, inv Invocation) error {
		calls.Add(1)
		if inv.Key != "weekly_embed" || inv.Payload != "" {
			t.Errorf("unexpected invocation: %+v", inv)
		}
		return nil
	})

	id := f.addEvent(t, store.Event{
		Command: "weekly_embed",
		Anchor:  schedule.AnchorWeek,
		Expr:    "w1@d2h10",
	})

	f.svc.tick(context.Background())

	if got := calls.Load(); got != 1 {
		t.Fatalf("handler called %d times, want 1", got)
	}
	// Thursday noon is past Wednesday 10:00; next slot is next Wednesday.
	if got, want := f.nextRun(t, id), utc(10, 10, 0); !got.Equal(want) {
		t.Fatalf("next run = %v, want %v", got, want)
	}

	// The event is no longer due; a second tick must not fire it again.
	f.svc.tick(context.Background())
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler called %d times after second tick, want 1", got)
	}
}

func TestTickPayloadSplit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var gotPayload string
	_ = f.registry.Register("reminder", func(ctx context.Context, inv Invocation) error {
		gotPayload = inv.Payload
		return nil
	})
	f.addEvent(t, store.Event{Command: "reminder:water the plants: daily"})

	f.svc.tick(context.Background())

	if gotPayload != "water the plants: daily" {
		t.Fatalf("payload = %q, want the full text after the first colon", gotPayload)
	}
}

func TestTickLegacyAlias(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var calls int
	_ = f.registry.Register("weekly_image", func(ctx context.Context, inv Invocation) error {
		calls++
		return nil
	})
	f.addEvent(t, store.Event{Command: "/report weekly"})

	f.svc.tick(context.Background())

	if calls != 1 {
		t.Fatalf("aliased handler called %d times, want 1", calls)
	}
}

func TestTickFailingHandlerStillReschedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_ = f.registry.Register("weekly_embed", func(ctx context.Context, inv Invocation) error {
		return errors.New("render broke")
	})
	id := f.addEvent(t, store.Event{Command: "weekly_embed", EveryMinutes: 30})

	f.svc.tick(context.Background())

	if got := f.nextRun(t, id); !got.After(f.now) {
		t.Fatalf("failed event not advanced: next run %v, now %v", got, f.now)
	}
	if got, want := f.nextRun(t, id), f.now.Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("flat fallback = %v, want %v", got, want)
	}
}

func TestTickUnknownKeySkipsButReschedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.addEvent(t, store.Event{Command: "no_such_action", EveryMinutes: 5})

	f.svc.tick(context.Background())

	if got, want := f.nextRun(t, id), f.now.Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("skipped event next run = %v, want %v", got, want)
	}
	if sent := f.recorder.Sent(); len(sent) != 0 {
		t.Fatalf("unexpected messages for unknown key: %+v", sent)
	}
}

func TestTickPanickingHandlerDoesNotKillLoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_ = f.registry.Register("explode", func(ctx context.Context, inv Invocation) error {
		panic("boom")
	})
	f.addEvent(t, store.Event{Command: "explode", EveryMinutes: 5})

	var calls int
	_ = f.registry.Register("fine", func(ctx context.Context, inv Invocation) error {
		calls++
		return nil
	})

	f.svc.tick(context.Background()) // recovered; must not propagate

	// Loop is still healthy: the next tick dispatches normally.
	f.now = f.now.Add(10 * time.Minute)
	f.addEvent(t, store.Event{Command: "fine", NextRun: f.now.Add(-time.Minute)})
	f.svc.tick(context.Background())
	if calls != 1 {
		t.Fatalf("handler after panic called %d times, want 1", calls)
	}
}

func TestMentionAnnouncement(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var handlerRan bool
	_ = f.registry.Register("reminder", func(ctx context.Context, inv Invocation) error {
		handlerRan = true
		return nil
	})

	tests := []struct {
		name    string
		mention chat.Mention
		target  string
		want    string
	}{
		{name: "here", mention: chat.MentionHere, want: "@here"},
		{name: "everyone", mention: chat.MentionEveryone, want: "@everyone"},
		{name: "user", mention: chat.MentionUser, target: "alice", want: "@alice"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f.recorder.Reset()
			f.addEvent(t, store.Event{
				Command: "reminder:hi",
				Mention: tt.mention,
				Target:  tt.target,
			})
			f.svc.tick(context.Background())

			sent := f.recorder.Sent()
			if len(sent) == 0 || sent[0].Text != tt.want {
				t.Fatalf("mention line = %+v, want first message %q", sent, tt.want)
			}
		})
	}
	if !handlerRan {
		t.Fatal("handler never ran")
	}
}

func TestMentionFailureDoesNotBlockAction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var calls int
	_ = f.registry.Register("reminder", func(ctx context.Context, inv Invocation) error {
		calls++
		return nil
	})
	f.recorder.FailSend = errors.New("network down")
	f.addEvent(t, store.Event{Command: "reminder:hi", Mention: chat.MentionHere})

	f.svc.tick(context.Background())

	if calls != 1 {
		t.Fatalf("handler called %d times despite mention failure, want 1", calls)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Stop before start is a no-op.
	if err := f.svc.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.svc.Stop(stopCtx); err != nil {
		t.Fatalf("double Stop: %v", err)
	}
}

func TestLoopProcessesDueEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	fired := make(chan struct{}, 1)
	_ = f.registry.Register("weekly_embed", func(ctx context.Context, inv Invocation) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	f.addEvent(t, store.Event{Command: "weekly_embed", EveryMinutes: 60})

	ctx := context.Background()
	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = f.svc.Stop(stopCtx)
	}()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("due event was not dispatched by the running loop")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register("", func(ctx context.Context, inv Invocation) error { return nil }); err == nil {
		t.Fatal("empty key accepted")
	}
	if err := r.Register("a:b", func(ctx context.Context, inv Invocation) error { return nil }); err == nil {
		t.Fatal("key with colon accepted")
	}
	if err := r.Register("x", nil); err == nil {
		t.Fatal("nil handler accepted")
	}

	_ = r.Register("b", func(ctx context.Context, inv Invocation) error { return nil })
	_ = r.Register("a", func(ctx context.Context, inv Invocation) error { return nil })
	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Keys() = %v, want [a b]", keys)
	}
	if _, ok := r.Lookup("a"); !ok {
		t.Fatal("Lookup(a) missed")
	}
	if _, ok := r.Lookup("z"); ok {
		t.Fatal("Lookup(z) unexpectedly hit")
	}
}
