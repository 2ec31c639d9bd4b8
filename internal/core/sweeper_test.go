package core

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ageEntry sets the modification time of path to age ago.
func ageEntry(t *testing.T, path string, age time.Duration) {
	t.Helper()
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func seedSweepRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	stale := filepath.Join(root, "stale.png")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	ageEntry(t, stale, 2*time.Hour)

	staleDir := filepath.Join(root, "stale-dir")
	require.NoError(t, os.MkdirAll(filepath.Join(staleDir, "nested"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "nested", "f"), []byte("x"), 0o600))
	ageEntry(t, staleDir, 3*time.Hour)

	fresh := filepath.Join(root, "fresh.pdf")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))
	ageEntry(t, fresh, 10*time.Minute)

	return root
}

// ============================================================================
// Sweep Tests
// ============================================================================

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	root := seedSweepRoot(t)
	s := NewRetentionSweeper(root, time.Hour)

	var removed []string
	s.OnRemove(func(name string) { removed = append(removed, name) })

	report := s.Sweep()
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, 0, report.Failed)

	sort.Strings(removed)
	assert.Equal(t, []string{"stale-dir", "stale.png"}, removed)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh.pdf", entries[0].Name())
}

func TestSweep_Idempotent(t *testing.T) {
	root := seedSweepRoot(t)
	s := NewRetentionSweeper(root, time.Hour)

	first := s.Sweep()
	second := s.Sweep()
	assert.Equal(t, 2, first.Removed)
	assert.Equal(t, 0, second.Removed)
	assert.Equal(t, 1, second.Scanned)
}

func TestSweep_MissingRoot(t *testing.T) {
	s := NewRetentionSweeper(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	report := s.Sweep()
	assert.Equal(t, SweepReport{Elapsed: report.Elapsed}, report)
}

func TestSweep_FailedEntrySkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := seedSweepRoot(t)

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "f"), []byte("x"), 0o600))
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { os.Chmod(locked, 0o700) })
	ageEntry(t, locked, 5*time.Hour)

	report := NewRetentionSweeper(root, time.Hour).Sweep()
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Removed, "other expired entries are still removed")
}

func TestSweep_UsesClock(t *testing.T) {
	root := seedSweepRoot(t)
	s := NewRetentionSweeper(root, time.Hour)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	report := s.Sweep()
	assert.Equal(t, 3, report.Removed)
}

func TestNewRetentionSweeper_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultUploadTTL, NewRetentionSweeper(t.TempDir(), 0).TTL())
}

// ============================================================================
// Schedule Tests
// ============================================================================

func TestSweeper_StartRunsImmediately(t *testing.T) {
	root := seedSweepRoot(t)
	s := NewRetentionSweeper(root, time.Hour)

	var mu sync.Mutex
	var reports []SweepReport
	s.AfterSweep(func(r SweepReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, "@every 1h"))
	defer s.Stop()

	mu.Lock()
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Removed)
	mu.Unlock()

	assert.Error(t, s.Start(ctx, "@every 1h"), "second start")
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	s := NewRetentionSweeper(t.TempDir(), time.Hour)
	err := s.Start(context.Background(), "every now and then")
	assert.Error(t, err)

	// a failed start leaves the sweeper startable
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, "@every 1h"))
	s.Stop()
	s.Stop()
}

func TestSweeper_StopsOnContext(t *testing.T) {
	s := NewRetentionSweeper(t.TempDir(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "@every 1h"))

	cancel()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cron == nil
	}, time.Second, 10*time.Millisecond)
}
