package schedule

import (
	"errors"
	"time"
)

// ErrZeroInterval is returned when a schedule has no forward progress:
// a repeating event with a zero interval would fire forever at the anchor.
var ErrZeroInterval = errors.New("schedule interval must be non-zero")

// NextRunFrom computes the next occurrence of an anchored schedule strictly
// after "now".
//
// The schedule fires at anchorStart + offset + k*interval for k >= 0. For week
// anchors the offset is folded so it always lands inside one week cycle:
// offset weeks are converted to days and the day total is reduced modulo 7
// (hours/minutes preserved). Month and year anchor offsets apply literally.
//
// The result is UTC with minute precision and always > now. The minimal k is
// found arithmetically rather than by stepping, so a "now" far past the
// anchor costs the same as one just past it.
func NextRunFrom(anchor Anchor, interval, offset Interval, now time.Time) (time.Time, error) {
	if interval.Zero() {
		return time.Time{}, ErrZeroInterval
	}
	now = now.UTC().Truncate(time.Minute)

	start, err := AnchorStart(anchor, now)
	if err != nil {
		return time.Time{}, err
	}
	if anchor == AnchorWeek {
		offset = foldWeekOffset(offset)
	}

	first := start.Add(offset.Duration())
	if first.After(now) {
		return first, nil
	}

	step := interval.Duration()
	// Estimate the minimal k >= 1 with first + k*step > now. The estimate
	// divides by max(60s, step) to stay bounded for sub-minute steps; the
	// candidate itself is always built from the exact parsed step.
	elapsed := now.Sub(first)
	estStep := step
	if estStep < time.Minute {
		estStep = time.Minute
	}
	k := int64(elapsed/estStep) + 1
	candidate := first.Add(time.Duration(k) * step)
	if candidate.After(now) {
		return candidate, nil
	}
	// Single corrective step covers boundary rounding.
	return candidate.Add(step), nil
}

// NextRunExpr parses "<interval>[@<offset>]" and computes the next run for
// the given anchor. This is the form stored on events and previewed by
// callers before persisting one.
func NextRunExpr(anchor Anchor, expr string, now time.Time) (time.Time, Interval, error) {
	interval, offset, err := ParseIntervalOffset(expr)
	if err != nil {
		return time.Time{}, Interval{}, err
	}
	next, err := NextRunFrom(anchor, interval, offset, now)
	if err != nil {
		return time.Time{}, Interval{}, err
	}
	return next, interval, nil
}

// NextRunWeekExpr is shorthand for NextRunExpr with a week anchor, the common
// case for user-authored schedules ("w1@d2h10" = weekly, Wednesday 10:00).
func NextRunWeekExpr(expr string, now time.Time) (time.Time, Interval, error) {
	return NextRunExpr(AnchorWeek, expr, now)
}

// foldWeekOffset folds offset weeks into days and wraps the day total at 7 so
// a week-anchored offset always addresses a day within the cycle.
func foldWeekOffset(offset Interval) Interval {
	days := (offset.Weeks*7 + offset.Days) % 7
	return Interval{Days: days, Hours: offset.Hours, Minutes: offset.Minutes}
}
