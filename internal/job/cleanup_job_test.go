package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	maxKeep int
	calls   int
	err     error
}

func (f *fakePruner) Prune(ctx context.Context, maxKeep int) ([]string, error) {
	f.calls++
	f.maxKeep = maxKeep
	return []string{"old"}, f.err
}

func TestSnapshotRetentionJob(t *testing.T) {
	p := &fakePruner{}
	j := NewSnapshotRetentionJob(p, 3)
	require.Equal(t, "snapshot_retention", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, 3, p.maxKeep)

	disabled := NewSnapshotRetentionJob(p, 0)
	require.NoError(t, disabled.Run(context.Background()))
	require.Equal(t, 1, p.calls)

	p.err = errors.New("boom")
	require.Error(t, j.Run(context.Background()))
}

type fakeDeleter struct {
	cutoff int64
	kept   string
}

func (f *fakeDeleter) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 1, nil
}

func (f *fakeDeleter) DeleteOtherVersions(ctx context.Context, keep string) (int64, error) {
	f.kept = keep
	return 2, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	d := &fakeDeleter{}
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	j := NewEmbeddingCacheCleanupJob(d, 0, nil)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), d.cutoff)
	require.Empty(t, d.kept)

	j = NewEmbeddingCacheCleanupJob(d, 7, func() string { return "v2" })
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-7*24*time.Hour).Unix(), d.cutoff)
	require.Equal(t, "v2", d.kept)
}

func TestFinishedJobCleanupJob(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	done := r.Create(1)
	r.SetRunning(done.JobID)
	r.SetCompleted(done.JobID, "/tmp/v")
	failed := r.Create(1)
	r.SetFailed(failed.JobID, "x")
	running := r.Create(1)
	r.SetRunning(running.JobID)

	r.now = func() time.Time { return base.Add(48 * time.Hour) }
	j := NewFinishedJobCleanupJob(r, 24*time.Hour)
	require.NoError(t, j.Run(context.Background()))

	list := r.List()
	require.Len(t, list, 1)
	require.Equal(t, running.JobID, list[0].JobID)
}
