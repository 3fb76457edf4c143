// Package engine drives chimebot's scheduled events.
//
// A single polling loop wakes on a fixed cadence, asks the store for due
// events, dispatches each one to its registered action handler, and writes a
// freshly computed next-run instant back. Events fire at most once per tick;
// a failing handler is logged and the event is still rescheduled, so one bad
// action can never wedge the loop or starve the rest.
package engine
