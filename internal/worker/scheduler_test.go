package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestScheduleRunsJob(t *testing.T) {
	s := NewScheduler(time.UTC, quietLogger())
	var runs atomic.Int64
	ok, err := s.Schedule("classify", "@every 1s", func(ctx context.Context) (int64, error) {
		runs.Add(1)
		return 1, nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleEmptySpecDisables(t *testing.T) {
	s := NewScheduler(nil, quietLogger())
	ok, err := s.Schedule("classify", "", func(context.Context) (int64, error) { return 0, nil })
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC, quietLogger())
	_, err := s.Schedule("dlq", "every now and then", func(context.Context) (int64, error) { return 0, nil })
	require.ErrorContains(t, err, "scheduling dlq")
}

func TestStopCancelsJobContext(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(time.UTC, slog.New(slog.NewTextHandler(&buf, nil)))
	started := make(chan struct{})
	var once atomic.Bool
	_, err := s.Schedule("dlq", "@every 1s", func(ctx context.Context) (int64, error) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return 0, errors.New("cancelled")
	})
	require.NoError(t, err)
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	s.Stop()
	require.Contains(t, buf.String(), "job failed")
}
