package scheduler

import (
	"context"
	"sync"
	"time"
)

// Sleeper blocks for a duration or until ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer
type TimerSleeper struct{}

// Sleep implements Sleeper
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is one run of a recurring job. Returning false ends the schedule.
type Task func(ctx context.Context) bool

// Scheduler drives recurring tasks as a loop over a Sleeper
type Scheduler struct {
	sleeper Sleeper
}

// New creates a scheduler; a nil sleeper means real timers
func New(sleeper Sleeper) *Scheduler {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &Scheduler{sleeper: sleeper}
}

// Every runs task immediately and then once per interval until the task
// returns false or ctx is done. It blocks for the life of the schedule.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, task Task) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !task(ctx) {
			return
		}
		if err := s.sleeper.Sleep(ctx, interval); err != nil {
			return
		}
	}
}

// NapRecorder is a Sleeper that returns immediately and records every
// requested duration. It makes backoff and heartbeat schedules testable
// without waiting.
type NapRecorder struct {
	mu   sync.Mutex
	naps []time.Duration

	// OnSleep, when set, runs after each recorded nap
	OnSleep func(n int)
}

// Sleep implements Sleeper
func (r *NapRecorder) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.naps = append(r.naps, d)
	n := len(r.naps)
	r.mu.Unlock()

	if r.OnSleep != nil {
		r.OnSleep(n)
	}
	return ctx.Err()
}

// Naps returns the recorded durations in order
func (r *NapRecorder) Naps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.naps...)
}
