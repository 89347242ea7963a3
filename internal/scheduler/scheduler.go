// Package scheduler implements the monitor scheduler (C10): a tick loop
// that dispatches due monitors to a bounded worker pool, generalizing the
// semaphore-bounded domain dispatch loop and periodic checkpoint ticker
// this project's crawler used for its own worker pool and periodic
// state-save loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/duskwatch/duskwatch/internal/logging"
	"github.com/duskwatch/duskwatch/internal/model"
)

// Store is the subset of the persistence layer the scheduler drives.
type Store interface {
	ListMonitorsDue(ctx context.Context, asOf time.Time) ([]*model.Monitor, error)
	RecordMonitorScan(ctx context.Context, id string, at, nextScan time.Time, summary model.MonitorSummary) error
	MonitorExists(ctx context.Context, id string) bool
}

// Scanner is the subset of the orchestrator the scheduler drives.
type Scanner interface {
	Scan(ctx context.Context, target string) (*model.ScanRecord, error)
}

// Config controls tick cadence, concurrency, and dispatch pacing.
type Config struct {
	TickInterval time.Duration
	PoolSize     int
	// DispatchRatePerSecond caps how many monitors are handed to the
	// worker pool per second, smoothing bursts against the anonymising
	// proxy when many monitors come due at once.
	DispatchRatePerSecond float64
}

// Scheduler runs the tick loop and worker pool for registered monitors.
type Scheduler struct {
	store   Store
	scanner Scanner
	logger  *logging.Logger
	cfg     Config

	semaphore chan struct{}
	limiter   *rate.Limiter

	inFlightMu sync.Mutex
	inFlight   map[string]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler. TickInterval is clamped to a 30s minimum per
// §4.10; PoolSize defaults to 4.
func New(store Store, scanner Scanner, logger *logging.Logger, cfg Config) *Scheduler {
	if cfg.TickInterval < 30*time.Second {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 4
	}
	if cfg.DispatchRatePerSecond <= 0 {
		cfg.DispatchRatePerSecond = 5
	}
	return &Scheduler{
		store:     store,
		scanner:   scanner,
		logger:    logger,
		cfg:       cfg,
		semaphore: make(chan struct{}, cfg.PoolSize),
		limiter:   rate.NewLimiter(rate.Limit(cfg.DispatchRatePerSecond), cfg.PoolSize),
		inFlight:  make(map[string]bool),
	}
}

// Start spins up the tick loop in a background goroutine. Call Shutdown
// to stop it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.tickLoop(ctx)
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.dispatchDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue collects monitors due for a scan and hands each to the
// worker pool, skipping any monitor already in flight.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.store.ListMonitorsDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("list due monitors failed", logging.Fields{"error": err.Error()})
		return
	}

	for _, m := range due {
		if !s.tryMarkInFlight(m.ID) {
			continue
		}

		monitor := m
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.limiter.Wait(ctx); err != nil {
				s.clearInFlight(monitor.ID)
				return
			}
			select {
			case s.semaphore <- struct{}{}:
			case <-ctx.Done():
				s.clearInFlight(monitor.ID)
				return
			}
			defer func() { <-s.semaphore }()

			s.runMonitor(ctx, monitor)
		}()
	}
}

func (s *Scheduler) tryMarkInFlight(id string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) clearInFlight(id string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, id)
}

// runMonitor executes one monitor's scan with panic isolation, updates its
// schedule with the catch-up policy (skip missed ticks; next_scan =
// now + interval, never a backlog), and releases the in-flight flag.
func (s *Scheduler) runMonitor(ctx context.Context, m *model.Monitor) {
	defer s.clearInFlight(m.ID)

	summary := s.executeWithRecover(ctx, m)

	now := time.Now().UTC()
	next := now.Add(time.Duration(m.IntervalMinutes) * time.Minute)

	if !s.store.MonitorExists(ctx, m.ID) {
		// Deleted mid-scan: the ScanRecord itself was already persisted by
		// the orchestrator: only the Monitor-specific bookkeeping is
		// discarded, per §4.10's cancellation rule.
		return
	}

	if err := s.store.RecordMonitorScan(ctx, m.ID, now, next, summary); err != nil {
		s.logger.Warn("record monitor scan failed", logging.Fields{"monitor_id": m.ID, "error": err.Error()})
	}
}

func (s *Scheduler) executeWithRecover(ctx context.Context, m *model.Monitor) (summary model.MonitorSummary) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("monitor scan panicked", logging.Fields{"monitor_id": m.ID, "target": m.Target, "panic": fmt.Sprintf("%v", r)})
			summary = model.MonitorSummary{Status: model.StatusError}
		}
	}()

	record, err := s.scanner.Scan(ctx, m.Target)
	if err != nil {
		s.logger.Error("monitor scan failed", logging.Fields{"monitor_id": m.ID, "target": m.Target, "error": err.Error()})
		return model.MonitorSummary{Status: model.StatusError}
	}

	iocCount := len(record.Emails) + len(record.CryptoAddresses)
	for _, fa := range record.FileAnalyses {
		if fa.FileHash != "" {
			iocCount++
		}
	}

	return model.MonitorSummary{
		Status:          record.URLStatus,
		ThreatScore:     record.ThreatScore,
		RiskLevel:       record.RiskLevel,
		Category:        record.Category,
		IOCCount:        iocCount,
		MalwareDetected: record.ThreatIndicators.MalwareDetected,
	}
}

// Shutdown cancels the tick loop and waits (bounded by ctx's deadline) for
// in-flight monitor scans to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown timed out: %w", ctx.Err())
	}
}
