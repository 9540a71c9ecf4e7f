package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	released int
	limit    int
	err      error
	calls    int
}

func (f *fakeReleaser) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	f.calls++
	f.limit = limit
	return f.released, f.err
}

func sweepTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewReservationSweepTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestReservationSweepReleases(t *testing.T) {
	fake := &fakeReleaser{released: 3}
	sweeper := NewReservationSweeper(fake, nil, slog.Default(), 50)

	err := sweeper.Handle(context.Background(), sweepTask(t))
	require.NoError(t, err)
	require.Equal(t, 1, fake.calls)
	require.Equal(t, 50, fake.limit)
}

func TestReservationSweepDefaultBatchSize(t *testing.T) {
	fake := &fakeReleaser{}
	sweeper := NewReservationSweeper(fake, nil, slog.Default(), 0)

	err := sweeper.Handle(context.Background(), sweepTask(t))
	require.NoError(t, err)
	require.Equal(t, 100, fake.limit)
}

func TestReservationSweepPropagatesError(t *testing.T) {
	fake := &fakeReleaser{err: errors.New("db down")}
	sweeper := NewReservationSweeper(fake, nil, slog.Default(), 10)

	err := sweeper.Handle(context.Background(), sweepTask(t))
	require.Error(t, err)
}

func TestReservationSweepSkipsBadPayload(t *testing.T) {
	fake := &fakeReleaser{}
	sweeper := NewReservationSweeper(fake, nil, slog.Default(), 10)

	err := sweeper.Handle(context.Background(), asynq.NewTask(TaskReservationSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, fake.calls)
}
