package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: "engine.dispatched", Data: "x"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != "engine.dispatched" {
				t.Fatalf("sub %d: type = %q, want %q", i, e.Type, "engine.dispatched")
			}
			if e.Time.IsZero() {
				t.Fatalf("sub %d: zero time", i)
			}
		default:
			t.Fatalf("sub %d: no event delivered", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	// Fill the buffer and keep publishing; extra events must be dropped,
	// not block the caller.
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: "engine.skipped"})
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	unsub() // idempotent

	b.Publish(Event{Type: "config.updated"})

	if _, ok := <-ch; ok {
		t.Fatalf("received event on closed subscription")
	}
}
