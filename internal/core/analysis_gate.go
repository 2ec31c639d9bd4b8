package core

// analysis_gate.go serializes calls into the layout analyzer.
//
// The gate is a one-slot semaphore: a single analysis runs at a time and
// others wait up to maxWait before failing with ErrServerBusy. The slot is
// held only around the analyzer call, never across rasterization or
// rendering.
//
// WaitForDrain lets shutdown wait for the running analysis to finish.

import (
	"context"
	"sync"
	"time"
)

// DefaultAnalysisWait is how long a conversion waits for the gate.
const DefaultAnalysisWait = 30 * time.Second

// AnalysisGate is the process-wide mutual exclusion around AnalyzeLayout.
type AnalysisGate struct {
	slot    chan struct{}
	maxWait time.Duration

	mu       sync.RWMutex
	active   int
	rejected int64
}

// NewAnalysisGate returns a gate that waits at most maxWait for the slot.
func NewAnalysisGate(maxWait time.Duration) *AnalysisGate {
	if maxWait <= 0 {
		maxWait = DefaultAnalysisWait
	}
	return &AnalysisGate{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// Acquire waits for the slot. It returns ErrServerBusy when maxWait passes
// and the caller's context error when ctx ends first. The caller must call
// Release after a nil return.
func (g *AnalysisGate) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.mu.Lock()
		g.rejected++
		g.mu.Unlock()
		return ErrServerBusy
	}
}

// Release frees the slot. Exactly one Release per successful acquire.
func (g *AnalysisGate) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()

	<-g.slot
}

// Do runs fn while holding the slot.
func (g *AnalysisGate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// ActiveCount returns 1 while an analysis runs, else 0.
func (g *AnalysisGate) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Available returns the number of free slots.
func (g *AnalysisGate) Available() int {
	return cap(g.slot) - len(g.slot)
}

// WaitForDrain blocks until no analysis is running or ctx is done.
func (g *AnalysisGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GateStatus is a snapshot for health output.
type GateStatus struct {
	Active    int    `json:"active"`
	Available int    `json:"available"`
	Busy      bool   `json:"busy"`
	Rejected  int64  `json:"rejected"`
	MaxWait   string `json:"max_wait"`
}

// Status returns the current gate state.
func (g *AnalysisGate) Status() GateStatus {
	free := g.Available()

	g.mu.RLock()
	defer g.mu.RUnlock()
	return GateStatus{
		Active:    g.active,
		Available: free,
		Busy:      free == 0,
		Rejected:  g.rejected,
		MaxWait:   g.maxWait.String(),
	}
}
