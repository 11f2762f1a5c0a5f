/*
scheduler.go - Background overdue and occupancy sweep

PURPOSE:
  Periodically flips pending payments whose due date has passed to
  overdue, then recomputes the occupancy flag of every known property so
  contracts that started or ended since the last sweep are reflected.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on Start
  - Each job is recorded as a scheduler run for audit and UI display
  - "Today" comes from the service clock (configured time zone)

JOBS:
  overdue:   PaymentStore.MarkOverdue(today)
  occupancy: SyncOccupancyStatus for every property

USAGE:
  scheduler := NewOverdueScheduler(svc, store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual run)
  - store/sqlite/sqlite.go: SchedulerRun records
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/store/sqlite"
)

const (
	JobOverdue   = "overdue"
	JobOccupancy = "occupancy"
)

// SweepRecorder receives sweep counters. Implemented by internal/metrics.
type SweepRecorder interface {
	OverdueMarked(contracts int)
	SchedulerRun(job string, err error)
}

type nopSweepRecorder struct{}

func (nopSweepRecorder) OverdueMarked(int)          {}
func (nopSweepRecorder) SchedulerRun(string, error) {}

// OverdueScheduler runs the overdue and occupancy sweep on a ticker.
type OverdueScheduler struct {
	Service       *lease.Service
	Store         *sqlite.Store
	Logger        *zap.Logger
	Recorder      SweepRecorder
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	sweep  sync.Mutex
}

// NewOverdueScheduler creates a scheduler with an hourly interval.
func NewOverdueScheduler(svc *lease.Service, store *sqlite.Store, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScheduler{
		Service:       svc,
		Store:         store,
		Logger:        logger.Named("scheduler"),
		Recorder:      nopSweepRecorder{},
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("stopped")
}

func (s *OverdueScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one sweep and returns the recorded runs.
func (s *OverdueScheduler) RunNow(ctx context.Context) []sqlite.SchedulerRun {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	asOf := s.Service.Clock.Today()
	return []sqlite.SchedulerRun{
		s.runJob(ctx, JobOverdue, asOf, s.markOverdue),
		s.runJob(ctx, JobOccupancy, asOf, s.syncOccupancy),
	}
}

// NextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) NextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}

func (s *OverdueScheduler) runJob(ctx context.Context, job string, asOf lease.Date, fn func(context.Context) (int, error)) sqlite.SchedulerRun {
	log := s.Logger.With(zap.String("job", job), zap.String("as_of", asOf.String()))

	run := sqlite.SchedulerRun{
		ID:        uuid.NewString(),
		Job:       job,
		AsOf:      asOf,
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := s.Store.SaveSchedulerRun(ctx, run); err != nil {
		log.Warn("failed to save run record", zap.Error(err))
	}

	affected, err := fn(ctx)
	completed := time.Now()
	run.Affected = affected
	run.CompletedAt = &completed
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		log.Error("sweep failed", zap.Int("affected", affected), zap.Error(err))
	} else {
		run.Status = "completed"
		log.Info("sweep completed", zap.Int("affected", affected), zap.Duration("duration", completed.Sub(run.StartedAt)))
	}
	s.Recorder.SchedulerRun(job, err)

	if err := s.Store.SaveSchedulerRun(ctx, run); err != nil {
		log.Warn("failed to update run record", zap.Error(err))
	}
	return run
}

func (s *OverdueScheduler) markOverdue(ctx context.Context) (int, error) {
	ids, err := s.Service.MarkOverdue(ctx)
	if err != nil {
		return 0, err
	}
	s.Recorder.OverdueMarked(len(ids))
	return len(ids), nil
}

// syncOccupancy returns how many properties changed flag.
func (s *OverdueScheduler) syncOccupancy(ctx context.Context) (int, error) {
	props, err := s.Store.ListProperties(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	var errs []error
	for _, p := range props {
		occ, err := s.Store.SyncOccupancyStatus(ctx, p.ID, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("property %s: %w", p.ID, err))
			continue
		}
		if occ != p.Occupancy {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}
