package core

// sweeper.go reclaims abandoned uploads.
//
// A sweep lists the immediate children of the upload root and removes every
// entry whose last access is older than the TTL. Errors on a single entry
// are logged and skipped; the next sweep retries it. Sweeps run once at
// start and then on a cron schedule.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultUploadTTL is the idle time after which an upload is reclaimed.
const DefaultUploadTTL = time.Hour

// DefaultSweepSchedule runs a sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// SweepReport summarizes one pass.
type SweepReport struct {
	Scanned int           `json:"scanned"`
	Removed int           `json:"removed"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"-"`
}

// RetentionSweeper removes expired entries under root.
type RetentionSweeper struct {
	root string
	ttl  time.Duration
	now  func() time.Time

	// onRemove is called with the name of every removed entry.
	onRemove func(name string)
	// afterSweep runs after every scheduled pass.
	afterSweep func(SweepReport)

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRetentionSweeper returns a sweeper for root. A non-positive ttl selects
// DefaultUploadTTL.
func NewRetentionSweeper(root string, ttl time.Duration) *RetentionSweeper {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &RetentionSweeper{root: root, ttl: ttl, now: time.Now}
}

// OnRemove registers fn to run for each removed entry.
func (s *RetentionSweeper) OnRemove(fn func(name string)) {
	s.onRemove = fn
}

// AfterSweep registers fn to run after each scheduled pass.
func (s *RetentionSweeper) AfterSweep(fn func(SweepReport)) {
	s.afterSweep = fn
}

// TTL returns the configured idle limit.
func (s *RetentionSweeper) TTL() time.Duration {
	return s.ttl
}

// Sweep performs one pass. It never fails; a missing root is an empty pass.
func (s *RetentionSweeper) Sweep() SweepReport {
	start := time.Now()
	var report SweepReport

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("sweep: read root failed", "root", s.root, "error", err)
		}
		report.Elapsed = time.Since(start)
		return report
	}

	cutoff := s.now().Add(-s.ttl)
	for _, e := range entries {
		report.Scanned++

		info, err := e.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			report.Failed++
			slog.Debug("sweep: remove failed", "path", path, "error", err)
			continue
		}
		report.Removed++
		if s.onRemove != nil {
			s.onRemove(e.Name())
		}
	}

	report.Elapsed = time.Since(start)
	return report
}

// Start sweeps once and then on schedule until ctx is done or Stop is
// called. schedule uses robfig/cron syntax, including "@every 10m".
func (s *RetentionSweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.scheduledSweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.scheduledSweep()
	c.Start()
	s.cron = c

	slog.Info("retention sweeper started", "root", s.root, "ttl", s.ttl, "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep. Safe to call twice.
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	slog.Info("retention sweeper stopped")
}

func (s *RetentionSweeper) scheduledSweep() {
	report := s.Sweep()
	if report.Removed > 0 || report.Failed > 0 {
		slog.Info("sweep finished",
			"scanned", report.Scanned,
			"removed", report.Removed,
			"failed", report.Failed,
			"duration_ms", report.Elapsed.Milliseconds(),
		)
	} else {
		slog.Debug("sweep finished", "scanned", report.Scanned)
	}
	if s.afterSweep != nil {
		s.afterSweep(report)
	}
}
