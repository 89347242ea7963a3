package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/duskwatch/duskwatch/internal/model"
)

// CreateMonitor inserts a new Monitor for owner, rejecting the call if
// owner is already at the monitor cap (active, non-deleted monitors
// only).
func (s *Store) CreateMonitor(_ context.Context, owner, target string, intervalMinutes int) (*model.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, m := range s.monitors {
		if m.Owner == owner {
			active++
		}
	}
	if active >= s.monitorCapPerOwner {
		return nil, ErrMonitorCapReached
	}

	now := time.Now().UTC()
	m := &model.Monitor{
		ID:              uuid.NewString(),
		Owner:           owner,
		Target:          target,
		IntervalMinutes: intervalMinutes,
		Paused:          false,
		CreatedAt:       now,
		NextScan:        now,
	}
	s.monitors[m.ID] = m
	return copyMonitor(m), nil
}

// GetMonitor returns one Monitor by ID.
func (s *Store) GetMonitor(_ context.Context, id string) (*model.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMonitor(m), nil
}

// ListMonitors returns every registered Monitor.
func (s *Store) ListMonitors(_ context.Context) ([]*model.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, copyMonitor(m))
	}
	return out, nil
}

// ListMonitorsDue returns monitors eligible for dispatch: not paused and
// next_scan <= asOf. Used by the scheduler's tick loop.
func (s *Store) ListMonitorsDue(_ context.Context, asOf time.Time) ([]*model.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Monitor
	for _, m := range s.monitors {
		if !m.Paused && !m.NextScan.After(asOf) {
			out = append(out, copyMonitor(m))
		}
	}
	return out, nil
}

// DeleteMonitor removes one Monitor, returning ErrNotFound if absent.
func (s *Store) DeleteMonitor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[id]; !ok {
		return ErrNotFound
	}
	delete(s.monitors, id)
	return nil
}

// DeleteAllMonitors removes every Monitor for owner and returns the count
// removed.
func (s *Store) DeleteAllMonitors(_ context.Context, owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, m := range s.monitors {
		if m.Owner == owner {
			delete(s.monitors, id)
			n++
		}
	}
	return n
}

// SetPaused sets the sticky pause flag on a Monitor. O(1) state write per
// §4.10.
func (s *Store) SetPaused(_ context.Context, id string, paused bool) (*model.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.Paused = paused
	return copyMonitor(m), nil
}

// RecordMonitorScan updates a Monitor's schedule and summary fields after
// a scan attempt completes, whether it succeeded or the orchestrator
// itself panicked (in which case summary carries an ERROR status).
func (s *Store) RecordMonitorScan(_ context.Context, id string, at, nextScan time.Time, summary model.MonitorSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}
	scanTime := at
	m.LastScan = &scanTime
	m.NextScan = nextScan
	m.ScanCount++
	m.LastScanSummary = &summary
	return nil
}

// MonitorExists reports whether id still refers to a live Monitor. Used
// by an in-flight worker to decide whether to discard monitor-specific
// bookkeeping after the owning Monitor was deleted mid-scan.
func (s *Store) MonitorExists(_ context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.monitors[id]
	return ok
}
