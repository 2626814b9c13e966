package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerSleeper_Sleep(t *testing.T) {
	start := time.Now()
	err := TimerSleeper{}.Sleep(context.Background(), 20*time.Millisecond)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerSleeper_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := TimerSleeper{}.Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvery_RunsImmediatelyThenPerInterval(t *testing.T) {
	recorder := &NapRecorder{}
	s := New(recorder)

	runs := 0
	s.Every(context.Background(), 15*time.Minute, func(ctx context.Context) bool {
		runs++
		return runs < 3
	})

	assert.Equal(t, 3, runs)
	assert.Equal(t, []time.Duration{15 * time.Minute, 15 * time.Minute}, recorder.Naps())
}

func TestEvery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recorder := &NapRecorder{OnSleep: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	s := New(recorder)

	runs := 0
	s.Every(ctx, time.Minute, func(ctx context.Context) bool {
		runs++
		return true
	})

	assert.Equal(t, 2, runs)
}

func TestNew_DefaultsToTimerSleeper(t *testing.T) {
	s := New(nil)
	assert.IsType(t, TimerSleeper{}, s.sleeper)
}
