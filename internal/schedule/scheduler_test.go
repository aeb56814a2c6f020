package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (j *countingJob) Name() string {
	return j.name
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobAndRunOnce(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "retention", err: errors.New("ignored")}
	require.NoError(t, s.AddJob(job, "0 3 * * *"))
	require.Error(t, s.AddJob(job, "0 4 * * *"))

	require.NoError(t, s.RunOnce("retention"))
	require.Equal(t, int32(1), job.runs.Load())
	require.Error(t, s.RunOnce("missing"))

	s.Start(context.Background())
	next, ok := s.Next("retention")
	require.True(t, ok)
	require.Equal(t, 3, next.Hour())
	s.Stop(context.Background())
}

func TestAddJobBadSpec(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countingJob{name: "x"}, "not a spec"))
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job, "0 * * * *"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunOnce("slow")
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.RunOnce("slow"))
	close(job.block)
	wg.Wait()
	require.Equal(t, int32(1), job.runs.Load())
}
