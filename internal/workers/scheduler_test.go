package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)

	return j.err
}

func TestSchedulerRunsJobRepeatedly(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(nil, nil)
	require.NoError(t, err)

	job := &countingJob{err: errors.New("transient")}
	require.NoError(t, s.Every(t.Context(), 10*time.Millisecond, job))

	s.Start()

	require.Eventually(t, func() bool { return job.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"a failing run must not stop later ticks")

	require.NoError(t, s.Shutdown(context.Background()))

	after := job.runs.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, job.runs.Load(), "no runs after shutdown")
}
