package chat

import (
	"context"
	"errors"
	"sync"
)

// Recorder is an in-memory Messenger for tests. It records every sent message
// and can be told to fail sends to exercise error paths.
type Recorder struct {
	mu   sync.Mutex
	sent []RecordedMessage

	// FailSend, when set, is returned by every Send call.
	FailSend error
}

type RecordedMessage struct {
	Ref  ChannelRef
	Text string
}

var _ Messenger = (*Recorder)(nil)

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Start(ctx context.Context) error { return nil }
func (r *Recorder) Stop(ctx context.Context) error  { return nil }

func (r *Recorder) Send(ctx context.Context, ref ChannelRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend != nil {
		return r.FailSend
	}
	if ref == "" {
		return errors.New("recorder: empty channel ref")
	}
	r.sent = append(r.sent, RecordedMessage{Ref: ref, Text: text})
	return nil
}

func (r *Recorder) MentionUser(target string) string { return "@" + target }

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset clears the recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
