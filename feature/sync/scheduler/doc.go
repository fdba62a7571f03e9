// Package scheduler evaluates per-connection recurrence rules and triggers
// sync runs on their occurrences.
//
// Rules come in three forms (daily@HH, weekly@weekday@HH, every@duration),
// all evaluated in UTC. The schedule row persists the next occurrence so the
// admin surface can display it; disabling a schedule clears it. A failed
// occurrence is recorded on the schedule and simply waits for the next one.
package scheduler
