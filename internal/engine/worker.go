package engine

import (
	"context"
	"runtime/debug"
	"time"

	"chimebot/internal/schedule"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

func (s *Service) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	poll := s.cfg.pollInterval()
	timer := time.NewTimer(0) // immediate first scan
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler loop exiting", logx.Err(ctx.Err()))
			return
		case <-stopCh:
			return
		case d := <-s.pollCh:
			if d != poll {
				s.log.Info("poll interval updated",
					logx.Duration("from", poll), logx.Duration("to", d))
				poll = d
			}
			continue
		case <-timer.C:
		}

		s.tick(ctx)
		timer.Reset(poll)
	}
}

// tick runs one scan-dispatch-reschedule pass. A panic anywhere in the pass
// is recovered and logged; the next tick still runs, so a single malformed
// event cannot permanently kill scheduling.
func (s *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked",
				logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	now := s.deps.Clock().UTC().Truncate(time.Minute)

	due, err := s.deps.Store.Due(ctx, now)
	if err != nil {
		s.log.Warn("due query failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug("due events", logx.Int("count", len(due)), logx.Time("now", now))

	for _, ev := range due {
		if ctx.Err() != nil {
			return
		}
		if err := s.dispatch(ctx, ev); err != nil {
			// Fire once per cycle and move on. The event still advances
			// below, so a persistently failing handler retries next cycle
			// instead of building a backlog.
			s.log.Error("dispatch failed",
				logx.Int64("event_id", ev.ID), logx.String("command", ev.Command), logx.Err(err))
		}

		next := s.reschedule(ev, now)
		if err := s.deps.Store.SetNextRun(ctx, ev.ID, next); err != nil {
			s.log.Error("persisting next run failed",
				logx.Int64("event_id", ev.ID), logx.Time("next_run", next), logx.Err(err))
			continue
		}
		s.log.Debug("event rescheduled",
			logx.Int64("event_id", ev.ID), logx.Time("next_run", next))
	}
}

// reschedule computes an event's next run from the current tick time.
// Anchored events use the calendar solver; malformed stored expressions fall
// back to the flat interval rather than freezing the event.
func (s *Service) reschedule(ev store.Event, now time.Time) time.Time {
	if ev.Anchor != "" && ev.Expr != "" {
		next, _, err := schedule.NextRunExpr(ev.Anchor, ev.Expr, now)
		if err == nil {
			return next
		}
		s.log.Error("stored schedule expression invalid; using flat interval",
			logx.Int64("event_id", ev.ID),
			logx.String("anchor", string(ev.Anchor)),
			logx.String("expr", ev.Expr),
			logx.Err(err))
	}
	minutes := ev.EveryMinutes
	if minutes < 1 {
		minutes = 1
	}
	return now.Add(time.Duration(minutes) * time.Minute)
}
