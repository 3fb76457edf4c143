package engine

import (
	"context"
	"fmt"
	"strings"

	"chimebot/internal/chat"
	"chimebot/internal/eventbus"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

// dispatch resolves one due event's command to a handler and invokes it,
// sending the mention pre-announcement first when the event carries one.
// An unknown key is a warn-and-skip, never an error: the event still gets
// rescheduled by the caller.
func (s *Service) dispatch(ctx context.Context, ev store.Event) error {
	command := strings.TrimSpace(ev.Command)
	if alias, ok := legacyAliases[command]; ok {
		command = alias
	}
	key, payload, _ := strings.Cut(command, ":")

	handler, ok := s.deps.Registry.Lookup(key)
	if !ok {
		s.log.Warn("no handler registered for action",
			logx.Int64("event_id", ev.ID),
			logx.String("key", key),
			logx.String("command", ev.Command))
		s.publish(TopicSkipped, ev, key)
		return nil
	}

	s.announceMention(ctx, ev)

	inv := Invocation{Event: ev, Key: key, Payload: payload}
	if err := invoke(ctx, handler, inv); err != nil {
		return fmt.Errorf("action %s: %w", key, err)
	}
	s.publish(TopicDispatched, ev, key)
	return nil
}

// invoke runs a handler with panic containment so a crashing action is just a
// failed dispatch: the event is still rescheduled instead of panicking its
// way through every subsequent tick.
func invoke(ctx context.Context, h Handler, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, inv)
}

// announceMention sends the event's mention line before the main action.
// Failures are logged and swallowed: a missed ping must never block the
// action itself.
func (s *Service) announceMention(ctx context.Context, ev store.Event) {
	var line string
	switch ev.Mention {
	case chat.MentionHere:
		line = "@here"
	case chat.MentionEveryone:
		line = "@everyone"
	case chat.MentionUser:
		if strings.TrimSpace(ev.Target) == "" {
			return
		}
		line = s.deps.Messenger.MentionUser(ev.Target)
	default:
		return
	}
	if err := s.deps.Messenger.Send(ctx, ev.Channel, line); err != nil {
		s.log.Warn("mention announcement failed",
			logx.Int64("event_id", ev.ID),
			logx.String("mention", string(ev.Mention)),
			logx.Err(err))
	}
}

func (s *Service) publish(topic string, ev store.Event, key string) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(eventbus.Event{
		Type: topic,
		Data: map[string]any{"event_id": ev.ID, "key": key, "channel": string(ev.Channel)},
	})
}
