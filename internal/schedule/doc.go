// Package schedule implements chimebot's calendar-anchored schedule math.
//
// Schedules are written as compact token expressions ("w2", "d2h4m30") that
// repeat from a calendar anchor (start of ISO week, month, or year, UTC).
// A combined form "<interval>@<offset>" shifts the first occurrence away from
// the anchor before repeating.
//
// Everything in this package is a pure function of its inputs: no clock reads,
// no I/O. Callers pass "now" explicitly, which keeps next-run computation
// deterministic and trivially testable.
package schedule
