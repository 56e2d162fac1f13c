package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/worker"
)

// runnerFunc adapts a function to worker.JobRunner.
type runnerFunc func(ctx context.Context, job *db.Job) (string, error)

func (f runnerFunc) Process(ctx context.Context, job *db.Job) (string, error) {
	return f(ctx, job)
}

func TestTick_NoPendingJobs(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		calls.Add(1)
		return db.JobStatusChecked, nil
	})

	p := worker.NewPoller(newFakeStore(), runner, time.Hour)

	assert.True(t, p.Tick(context.Background()))
	assert.Zero(t, calls.Load())
	assert.NotNil(t, p.Status().LastTickAt)
	assert.Nil(t, p.Status().LastJobID)
}

func TestTick_ProcessesOldestJob(t *testing.T) {
	first, second := newJob("First Person"), newJob("Second Person")
	store := newFakeStore(first, second)

	var got []string
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		got = append(got, job.FullName)
		_ = store.UpdateJobStatus(ctx, job.ID, db.JobStatusNoMatch)
		return db.JobStatusNoMatch, nil
	})

	p := worker.NewPoller(store, runner, time.Hour)
	p.Tick(context.Background())

	assert.Equal(t, []string{"First Person"}, got)
	status := p.Status()
	require.NotNil(t, status.LastJobID)
	assert.Equal(t, first.ID, *status.LastJobID)
	assert.Equal(t, db.JobStatusNoMatch, status.LastStatus)
	assert.False(t, status.InFlight)
}

func TestTick_SkipsWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		close(started)
		<-release
		return db.JobStatusChecked, nil
	})

	p := worker.NewPoller(newFakeStore(newJob("Ivan Petrov")), runner, time.Hour)

	done := make(chan bool)
	go func() { done <- p.Tick(context.Background()) }()
	<-started

	assert.False(t, p.Tick(context.Background()), "second tick must be skipped")
	status := p.Status()
	assert.True(t, status.InFlight)
	assert.Equal(t, int64(1), status.TicksSkipped)

	close(release)
	assert.True(t, <-done)
	assert.False(t, p.Status().InFlight)
}

func TestTick_ErrorsAreSwallowed(t *testing.T) {
	store := newFakeStore()
	store.nextErr = errors.New("connection refused")
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		t.Fatal("runner must not be called")
		return "", nil
	})

	p := worker.NewPoller(store, runner, time.Hour)

	assert.True(t, p.Tick(context.Background()))
	assert.True(t, p.Tick(context.Background()), "guard must be released after an error")
}

func TestTick_RecoversFromPanic(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		panic("boom")
	})

	p := worker.NewPoller(newFakeStore(newJob("Ivan Petrov")), runner, time.Hour)

	var ran bool
	assert.NotPanics(t, func() { ran = p.Tick(context.Background()) })
	assert.True(t, ran, "a tick that panicked still ran")
	assert.False(t, p.Status().InFlight)
	assert.Zero(t, p.Status().TicksSkipped)
	assert.True(t, p.Tick(context.Background()))
}

func TestTick_ProcessErrorRecorded(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		return db.JobStatusError, errors.New("update failed")
	})

	p := worker.NewPoller(newFakeStore(newJob("Ivan Petrov")), runner, time.Hour)

	assert.True(t, p.Tick(context.Background()))
	assert.Equal(t, db.JobStatusError, p.Status().LastStatus)
}

func TestPoller_StartRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	store := newFakeStore(newJob("Ivan Petrov"))
	runner := runnerFunc(func(ctx context.Context, job *db.Job) (string, error) {
		calls.Add(1)
		_ = store.UpdateJobStatus(ctx, job.ID, db.JobStatusChecked)
		return db.JobStatusChecked, nil
	})

	p := worker.NewPoller(store, runner, time.Hour)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	p.Stop()
	assert.Equal(t, int32(1), calls.Load())
}
