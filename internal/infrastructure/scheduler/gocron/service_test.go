package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/stretchr/testify/require"
)

type fakeHeight struct {
	height atomic.Uint32
}

func (f *fakeHeight) GetBlockHeight(context.Context) (uint32, error) {
	return f.height.Load(), nil
}

func TestSchedulerService(t *testing.T) {
	t.Run("schedule at time", func(t *testing.T) {
		svc := NewScheduler(nil, 0)
		svc.Start()
		defer svc.Stop()

		done := make(chan bool, 1)
		err := svc.ScheduleAtTime("swap/expire-at", time.Now().Add(time.Second), func() {
			done <- true
		})
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			require.Fail(t, "job did not execute within expected time")
		}

		// verify it won't run again
		select {
		case <-done:
			require.Fail(t, "job executed again")
		case <-time.After(2 * time.Second):
		}
	})

	t.Run("schedule in past", func(t *testing.T) {
		svc := NewScheduler(nil, 0)
		svc.Start()
		defer svc.Stop()

		done := make(chan bool, 1)
		err := svc.ScheduleAtTime("swap/reclaim", time.Now().Add(-time.Hour), func() {
			done <- true
		})
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(time.Second):
			require.Fail(t, "job did not execute within expected time")
		}

		err = svc.ScheduleAtTime("swap/reclaim", time.Time{}, func() {})
		require.Error(t, err)
	})

	t.Run("replace and cancel", func(t *testing.T) {
		svc := NewScheduler(nil, 0)
		svc.Start()
		defer svc.Stop()

		var first, second atomic.Int32
		at := time.Now().Add(500 * time.Millisecond)
		require.NoError(t, svc.ScheduleAtTime("swap/expire-at", at, func() { first.Add(1) }))
		require.NoError(t, svc.ScheduleAtTime("swap/expire-at", at, func() { second.Add(1) }))
		require.NoError(t, svc.ScheduleAtTime("other/expire-at", at, func() { first.Add(1) }))
		svc.Cancel("other/expire-at")

		time.Sleep(2 * time.Second)
		require.Zero(t, first.Load())
		require.Equal(t, int32(1), second.Load())
	})

	t.Run("schedule every", func(t *testing.T) {
		svc := NewScheduler(nil, 0)
		svc.Start()
		defer svc.Stop()

		var runs atomic.Int32
		require.NoError(t, svc.ScheduleEvery(200*time.Millisecond, func() { runs.Add(1) }))
		require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)

		require.Error(t, svc.ScheduleEvery(0, func() {}))
	})

	t.Run("schedule at height", func(t *testing.T) {
		reporter := &fakeHeight{}
		reporter.height.Store(100)
		heights := func(chain string) (ports.HeightReporter, bool) {
			if chain != "stellar" {
				return nil, false
			}
			return reporter, true
		}
		svc := NewScheduler(heights, 50*time.Millisecond)
		svc.Start()
		defer svc.Stop()

		var fired, cancelled atomic.Bool
		require.NoError(t, svc.ScheduleAtHeight("swap/expire-height", "stellar", 105, func() { fired.Store(true) }))
		require.NoError(t, svc.ScheduleAtHeight("other/expire-height", "stellar", 105, func() { cancelled.Store(true) }))
		svc.Cancel("other/expire-height")

		require.Error(t, svc.ScheduleAtHeight("x", "ethereum", 105, func() {}))
		require.Error(t, svc.ScheduleAtHeight("x", "stellar", 0, func() {}))

		time.Sleep(200 * time.Millisecond)
		require.False(t, fired.Load())

		reporter.height.Store(105)
		require.Eventually(t, fired.Load, 2*time.Second, 20*time.Millisecond)
		require.False(t, cancelled.Load())
	})
}
