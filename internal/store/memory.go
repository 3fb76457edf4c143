package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chimebot/internal/chat"
)

// Memory is a mutex-guarded in-process store. Used by tests and for
// ephemeral runs where losing schedules on restart is acceptable.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]Event
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{events: map[int64]Event{}}
}

func (m *Memory) Add(ctx context.Context, e Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.Active = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Mention == "" {
		e.Mention = chat.MentionNone
	}
	m.events[e.ID] = e
	return e.ID, nil
}

func (m *Memory) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || !e.Active {
		return ErrNotFound
	}
	e.Active = false
	m.events[id] = e
	return nil
}

func (m *Memory) List(ctx context.Context) ([]Event, error) {
	return m.collect(func(e Event) bool { return e.Active }), nil
}

func (m *Memory) ListChannel(ctx context.Context, ref chat.ChannelRef) ([]Event, error) {
	return m.collect(func(e Event) bool { return e.Active && e.Channel == ref }), nil
}

func (m *Memory) Due(ctx context.Context, now time.Time) ([]Event, error) {
	return m.collect(func(e Event) bool { return e.Active && !e.NextRun.After(now) }), nil
}

func (m *Memory) SetNextRun(ctx context.Context, id int64, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.NextRun = next.UTC()
	m.events[id] = e
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) collect(keep func(Event) bool) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
