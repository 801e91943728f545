// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeEngine counts calls. When release is set, Sync blocks until it closes.
type fakeEngine struct {
	mu      sync.Mutex
	syncs   int
	checks  int
	err     error
	started chan struct{}
	release chan struct{}
	// ctxErr is the cycle context's error once Sync returns.
	ctxErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{started: make(chan struct{}, 16)}
}

func (f *fakeEngine) Sync(ctx context.Context) (*syncpkg.SyncResult, error) {
	f.mu.Lock()
	f.syncs++
	release, err := f.release, f.err
	f.mu.Unlock()

	f.started <- struct{}{}
	if release != nil {
		<-release
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	if err != nil {
		return &syncpkg.SyncResult{Error: err.Error()}, err
	}
	return &syncpkg.SyncResult{Success: true, Pushed: 2}, nil
}

func (f *fakeEngine) CheckQuickLogBacklog(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return 0, nil
}

func (f *fakeEngine) Status(ctx context.Context) (syncpkg.Status, error) {
	return syncpkg.Status{State: syncpkg.SyncStatusIdle}, nil
}

func (f *fakeEngine) LastSync() (*time.Time, error) {
	return nil, nil
}

func (f *fakeEngine) counts() (syncs, checks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, f.checks
}

var _ syncpkg.EngineInterface = (*fakeEngine)(nil)

func newTestScheduler(t *testing.T, engine *fakeEngine, network *syncpkg.Network, config SchedulerConfig) (*Scheduler, *clock.Mock) {
	t.Helper()
	c := clock.NewMock()
	s, err := NewScheduler(engine, network, config, c)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(s.Stop)
	return s, c
}

func waitStarted(t *testing.T, engine *fakeEngine) {
	t.Helper()
	select {
	case <-engine.started:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Sync")
	}
}

// =====================================================
// Configuration Tests
// =====================================================

// TestDefaultSchedulerConfig verifies default configuration.
func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.SyncSchedule != "@every 15m" {
		t.Errorf("SyncSchedule = %q, want @every 15m", config.SyncSchedule)
	}
	if config.QuickLogSchedule != "@every 1h" {
		t.Errorf("QuickLogSchedule = %q, want @every 1h", config.QuickLogSchedule)
	}
}

// TestNewScheduler verifies defaults are applied and schedules are validated.
func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name    string
		config  SchedulerConfig
		wantErr bool
	}{
		{"empty uses defaults", SchedulerConfig{}, false},
		{"descriptor", SchedulerConfig{SyncSchedule: "@hourly"}, false},
		{"six field spec", SchedulerConfig{SyncSchedule: "0 */15 * * * *"}, false},
		{"bad sync spec", SchedulerConfig{SyncSchedule: "every fifteen minutes"}, true},
		{"bad quick log spec", SchedulerConfig{QuickLogSchedule: "@every"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(newFakeEngine(), nil, tt.config, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !apperrors.Is(err, apperrors.ErrInvalid) {
					t.Errorf("error = %v, want %s", err, apperrors.ErrInvalid)
				}
				return
			}
			if s.config.SyncSchedule == "" || s.config.QuickLogSchedule == "" {
				t.Errorf("config = %+v, want defaults filled in", s.config)
			}
		})
	}
}

// =====================================================
// Lifecycle Tests
// =====================================================

// TestScheduler_StartStop verifies Start and Stop are idempotent.
func TestScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeEngine(), nil, SchedulerConfig{})

	if s.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if status := s.GetStatus(); status.NextSync == nil {
		t.Error("NextSync = nil while running")
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if status := s.GetStatus(); status.NextSync != nil {
		t.Errorf("NextSync = %v after Stop, want nil", status.NextSync)
	}
}

// TestScheduler_cronRunsJobs verifies both schedules fire.
func TestScheduler_cronRunsJobs(t *testing.T) {
	engine := newFakeEngine()
	s, _ := newTestScheduler(t, engine, nil, SchedulerConfig{
		SyncSchedule:     "@every 1s",
		QuickLogSchedule: "@every 1s",
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitStarted(t, engine)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, checks := engine.counts(); checks > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("quick log check never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// =====================================================
// Sync Tests
// =====================================================

// TestSyncNow verifies a manual sync updates the scheduler status.
func TestSyncNow(t *testing.T) {
	engine := newFakeEngine()
	s, c := newTestScheduler(t, engine, nil, SchedulerConfig{})

	result, err := s.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if result.Pushed != 2 {
		t.Errorf("Pushed = %d, want 2", result.Pushed)
	}

	status := s.GetStatus()
	if status.LastSyncTime == nil || !status.LastSyncTime.Equal(c.Now()) {
		t.Errorf("LastSyncTime = %v, want %v", status.LastSyncTime, c.Now())
	}
	if status.LastResult != result || status.SyncInProgress {
		t.Errorf("status = %+v, want last result recorded and no sync in progress", status)
	}

	engine.err = apperrors.New(apperrors.ErrSyncFailed, "boom")
	c.Advance(time.Minute)
	if _, err := s.SyncNow(context.Background()); err == nil {
		t.Fatal("SyncNow() error = nil, want failure")
	}
	status = s.GetStatus()
	if status.LastError == "" {
		t.Error("LastError empty after failed sync")
	}
	if !status.LastSyncTime.Equal(c.Now().Add(-time.Minute)) {
		t.Errorf("LastSyncTime = %v, want the last successful sync", status.LastSyncTime)
	}
}

// TestSyncNow_inProgress verifies only one sync runs at a time.
func TestSyncNow_inProgress(t *testing.T) {
	engine := newFakeEngine()
	engine.release = make(chan struct{})
	s, _ := newTestScheduler(t, engine, nil, SchedulerConfig{})

	if !s.TriggerSync() {
		t.Fatal("TriggerSync() = false, want true")
	}
	waitStarted(t, engine)

	if s.TriggerSync() {
		t.Error("TriggerSync() = true while a sync is running")
	}
	result, err := s.SyncNow(context.Background())
	if !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		t.Errorf("SyncNow() error = %v, want %s", err, apperrors.ErrSyncInProgress)
	}
	if result.Error != "Sync already in progress" {
		t.Errorf("Error = %q", result.Error)
	}
	if !s.GetStatus().SyncInProgress {
		t.Error("SyncInProgress = false while blocked")
	}

	close(engine.release)
	s.wg.Wait()
	if syncs, _ := engine.counts(); syncs != 1 {
		t.Errorf("syncs = %d, want 1", syncs)
	}
}

// TestScheduler_stopDuringSync verifies a running cycle is not cancelled when
// the scheduler shuts down; Stop waits for it instead.
func TestScheduler_stopDuringSync(t *testing.T) {
	engine := newFakeEngine()
	engine.release = make(chan struct{})
	s, _ := newTestScheduler(t, engine, nil, SchedulerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.TriggerSync() {
		t.Fatal("TriggerSync() = false, want true")
	}
	waitStarted(t, engine)

	cancel()
	close(engine.release)
	s.Stop()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.ctxErr != nil {
		t.Errorf("cycle context error = %v, want nil", engine.ctxErr)
	}
}

// TestScheduledSync_offline verifies ticks are skipped while offline.
func TestScheduledSync_offline(t *testing.T) {
	engine := newFakeEngine()
	network := syncpkg.NewNetwork(false, false)
	s, _ := newTestScheduler(t, engine, network, SchedulerConfig{})

	s.scheduledSync()
	if syncs, _ := engine.counts(); syncs != 0 {
		t.Errorf("syncs = %d while offline, want 0", syncs)
	}

	network.Set(true, false)
	s.scheduledSync()
	if syncs, _ := engine.counts(); syncs != 1 {
		t.Errorf("syncs = %d online, want 1", syncs)
	}
}

// TestSetOnline verifies reconnecting triggers a sync on a running scheduler.
func TestSetOnline(t *testing.T) {
	tests := []struct {
		name      string
		startedOn bool
		online    bool
		running   bool
		wantSync  bool
	}{
		{"reconnect while running", false, true, true, true},
		{"reconnect while stopped", false, true, false, false},
		{"already online", true, true, true, false},
		{"going offline", true, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			network := syncpkg.NewNetwork(tt.startedOn, false)
			s, _ := newTestScheduler(t, engine, network, SchedulerConfig{})
			if tt.running {
				if err := s.Start(context.Background()); err != nil {
					t.Fatal(err)
				}
			}

			s.SetOnline(tt.online, false)
			if s.IsOnline() != tt.online {
				t.Errorf("IsOnline() = %v, want %v", s.IsOnline(), tt.online)
			}

			s.wg.Wait()
			syncs, _ := engine.counts()
			if (syncs > 0) != tt.wantSync {
				t.Errorf("syncs = %d, want sync %v", syncs, tt.wantSync)
			}
		})
	}
}

// TestSetOnline_noNetwork verifies a scheduler without a network stays online.
func TestSetOnline_noNetwork(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeEngine(), nil, SchedulerConfig{})
	s.SetOnline(false, false)
	if !s.IsOnline() {
		t.Error("IsOnline() = false without a network")
	}
}
