// Package scheduler runs sync cycles and the quick-log backlog check in the
// background on cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
)

// Scheduler manages background sync operations.
type Scheduler struct {
	engine  syncpkg.EngineInterface
	network *syncpkg.Network
	clock   clock.Clock
	config  SchedulerConfig

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.RWMutex
	isRunning      bool
	syncInProgress bool
	lastSyncTime   time.Time
	lastResult     *syncpkg.SyncResult
	lastError      string
}

// SchedulerConfig holds scheduler configuration. Schedules use robfig/cron
// syntax, e.g. "@every 15m" or "0 */15 * * * *".
type SchedulerConfig struct {
	SyncSchedule     string
	QuickLogSchedule string
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SyncSchedule:     "@every 15m",
		QuickLogSchedule: "@every 1h",
	}
}

// NewScheduler creates a Scheduler. network may be nil when the host has no
// connectivity signal to forward. Schedules are validated up front.
func NewScheduler(engine syncpkg.EngineInterface, network *syncpkg.Network, config SchedulerConfig, c clock.Clock) (*Scheduler, error) {
	d := DefaultSchedulerConfig()
	if config.SyncSchedule == "" {
		config.SyncSchedule = d.SyncSchedule
	}
	if config.QuickLogSchedule == "" {
		config.QuickLogSchedule = d.QuickLogSchedule
	}
	if c == nil {
		c = clock.New()
	}

	for _, spec := range []string{config.SyncSchedule, config.QuickLogSchedule} {
		if _, err := cron.Parse(spec); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid schedule "+spec, err)
		}
	}

	return &Scheduler{
		engine:  engine,
		network: network,
		clock:   c,
		config:  config,
	}, nil
}

// Start starts the background schedules. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()
	if err := s.cron.AddFunc(s.config.SyncSchedule, s.track(s.scheduledSync)); err != nil {
		s.cancel()
		return errors.Wrap(err, "scheduling sync")
	}
	if err := s.cron.AddFunc(s.config.QuickLogSchedule, s.track(s.checkQuickLogs)); err != nil {
		s.cancel()
		return errors.Wrap(err, "scheduling quick log check")
	}
	s.cron.Start()
	s.isRunning = true

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"sync_schedule":      s.config.SyncSchedule,
		"quick_log_schedule": s.config.QuickLogSchedule,
	})
	return nil
}

// Stop stops the schedules and waits for any background cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cron.Stop()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info("Background sync scheduler stopped", nil)
}

// SetOnline forwards a connectivity change to the engine. Coming back online
// triggers a sync straight away rather than waiting for the next tick.
func (s *Scheduler) SetOnline(online, wifi bool) {
	if s.network == nil {
		return
	}
	wasOnline := s.network.IsOnline()
	s.network.Set(online, wifi)

	if wasOnline == s.network.IsOnline() {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  online,
		"wifi":       wifi,
	})

	if !wasOnline && s.IsRunning() {
		s.TriggerSync()
	}
}

// IsOnline reports the forwarded connectivity. Without a network it assumes online.
func (s *Scheduler) IsOnline() bool {
	if s.network == nil {
		return true
	}
	return s.network.IsOnline()
}

// track runs a cron job unless the scheduler is stopping, so Stop can wait
// for it.
func (s *Scheduler) track(job func()) func() {
	return func() {
		s.mu.RLock()
		if !s.isRunning {
			s.mu.RUnlock()
			return
		}
		s.wg.Add(1)
		s.mu.RUnlock()
		defer s.wg.Done()
		job()
	}
}

func (s *Scheduler) scheduledSync() {
	if !s.IsOnline() {
		logging.Debug("Skipping scheduled sync, device offline", nil)
		return
	}
	s.runSync(s.context(), "scheduled")
}

func (s *Scheduler) checkQuickLogs() {
	n, err := s.engine.CheckQuickLogBacklog(s.context())
	if err != nil {
		logging.Error("Quick log backlog check failed", err)
		return
	}
	logging.Debug("Quick log backlog checked", map[string]interface{}{"count": n})
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// begin claims the single sync slot.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncInProgress {
		return false
	}
	s.syncInProgress = true
	return true
}

func (s *Scheduler) finish(result *syncpkg.SyncResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncInProgress = false
	s.lastResult = result
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
	s.lastSyncTime = s.clock.Now()
}

// runSync executes one cycle unless another is already running.
func (s *Scheduler) runSync(ctx context.Context, trigger string) {
	if !s.begin() {
		logging.Debug("Sync already in progress, skipping", map[string]interface{}{"trigger": trigger})
		return
	}

	result, err := s.engine.Sync(cycleContext(ctx))
	s.finish(result, err)

	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncOffline) || apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("Sync did not run", map[string]interface{}{"trigger": trigger, "reason": err.Error()})
			return
		}
		logging.ErrorWithCode("Background sync failed", string(apperrors.ErrSyncFailed), err,
			map[string]interface{}{"trigger": trigger})
		return
	}

	logging.Info("Background sync completed", map[string]interface{}{
		"trigger":   trigger,
		"pushed":    result.Pushed,
		"pulled":    result.Pulled,
		"conflicts": result.Conflicts,
	})
}

// TriggerSync starts a sync in the background. It returns false if a sync
// is already in progress.
func (s *Scheduler) TriggerSync() bool {
	s.mu.RLock()
	busy := s.syncInProgress
	s.mu.RUnlock()
	if busy {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(s.context(), "manual")
	}()
	return true
}

// SyncNow runs a sync and waits for it.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.SyncResult, error) {
	if !s.begin() {
		return &syncpkg.SyncResult{Error: "Sync already in progress"},
			apperrors.New(apperrors.ErrSyncInProgress, "Sync already in progress")
	}

	result, err := s.engine.Sync(cycleContext(ctx))
	s.finish(result, err)
	return result, err
}

// cycleContext keeps ctx's values but not its cancellation. A cycle always
// runs to the end; each remote request is bounded by the client's timeout,
// and Stop waits for the cycle instead of interrupting it.
func cycleContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning      bool                `json:"is_running"`
	IsOnline       bool                `json:"is_online"`
	SyncInProgress bool                `json:"sync_in_progress"`
	LastSyncTime   *time.Time          `json:"last_sync_time,omitempty"`
	LastResult     *syncpkg.SyncResult `json:"last_result,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	NextSync       *time.Time          `json:"next_sync,omitempty"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		IsOnline:       s.IsOnline(),
		SyncInProgress: s.syncInProgress,
		LastResult:     s.lastResult,
		LastError:      s.lastError,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.isRunning {
		if sched, err := cron.Parse(s.config.SyncSchedule); err == nil {
			next := sched.Next(s.clock.Now())
			status.NextSync = &next
		}
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
