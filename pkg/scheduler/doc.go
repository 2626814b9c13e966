// Package scheduler provides the timer primitives behind the agent's
// recurring and delayed work: the sync orchestrator's backoff sleeps and the
// heartbeat loop. Schedules are plain loops over an injectable Sleeper, so a
// schedule never grows the call stack and tests can substitute NapRecorder
// for real time.
package scheduler
