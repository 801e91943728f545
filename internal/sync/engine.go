// Package sync coordinates sync cycles between the local record store and the
// remote row API: retry queue drain, push, pull with conflict resolution, and
// photo file transfer.
package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kimhsiao/fieldsync/internal/blob"
	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/remote"
	"github.com/kimhsiao/fieldsync/internal/sync/conflict"
	"github.com/kimhsiao/fieldsync/internal/sync/conflictlog"
	"github.com/kimhsiao/fieldsync/internal/sync/photo"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

const (
	msgOffline    = "Device is offline"
	msgInProgress = "Sync already in progress"
	msgNoRemote   = "No remote configured"

	// QuickLogBacklogThreshold is how many unenriched quick logs may pile up
	// before a supervisor is alerted.
	QuickLogBacklogThreshold = 10
)

// Connectivity reports the device's network state.
type Connectivity interface {
	IsOnline() bool
	IsOnWiFi() bool
}

// Network is a settable Connectivity for hosts that learn the network state
// from elsewhere.
type Network struct {
	online atomic.Bool
	wifi   atomic.Bool
}

// NewNetwork returns a Network in the given state.
func NewNetwork(online, wifi bool) *Network {
	n := &Network{}
	n.Set(online, wifi)
	return n
}

// Set updates the state. WiFi implies online.
func (n *Network) Set(online, wifi bool) {
	n.online.Store(online || wifi)
	n.wifi.Store(wifi)
}

// IsOnline implements Connectivity.
func (n *Network) IsOnline() bool { return n.online.Load() }

// IsOnWiFi implements Connectivity.
func (n *Network) IsOnWiFi() bool { return n.wifi.Load() }

// SyncResult summarizes one sync cycle. Success is true when the cycle ran to
// completion, even if individual records failed and were queued for retry.
type SyncResult struct {
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	Pushed           int           `json:"pushed"`
	Pulled           int           `json:"pulled"`
	Conflicts        int           `json:"conflicts"`
	Escalated        int           `json:"escalated"`
	Enqueued         int           `json:"enqueued"`
	Abandoned        int           `json:"abandoned"`
	Skipped          int           `json:"skipped"`
	RetriedOK        int           `json:"retried_ok"`
	RetriedFailed    int           `json:"retried_failed"`
	PhotosUploaded   int           `json:"photos_uploaded"`
	PhotosDownloaded int           `json:"photos_downloaded"`
	Duration         time.Duration `json:"duration"`
}

// Options wires an Engine.
type Options struct {
	Store     db.SyncRepository
	Remote    remote.Source
	Queue     *queue.Queue
	Conflicts *conflictlog.Log
	// Photos moves photo files; nil disables file sync.
	Photos  *photo.Syncer
	KV      kv.Store
	Network Connectivity
	Clock   clock.Clock

	// DatabasePath and Cache are only read for diagnostics.
	DatabasePath string
	Cache        *blob.LocalCache

	StaleThreshold time.Duration
	PruneAfter     time.Duration
}

// Engine runs sync cycles. At most one cycle is in flight at a time.
type Engine struct {
	store     db.SyncRepository
	remote    remote.Source
	queue     *queue.Queue
	conflicts *conflictlog.Log
	photos    *photo.Syncer
	meta      metadata
	network   Connectivity
	clock     clock.Clock

	databasePath string
	cache        *blob.LocalCache

	staleThreshold time.Duration
	pruneAfter     time.Duration

	running atomic.Bool
}

var _ EngineInterface = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Network == nil {
		opts.Network = NewNetwork(true, true)
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = queue.DefaultStaleThreshold
	}
	if opts.PruneAfter <= 0 {
		opts.PruneAfter = queue.DefaultPruneAge
	}
	return &Engine{
		store:          opts.Store,
		remote:         opts.Remote,
		queue:          opts.Queue,
		conflicts:      opts.Conflicts,
		photos:         opts.Photos,
		meta:           metadata{store: opts.KV},
		network:        opts.Network,
		clock:          opts.Clock,
		databasePath:   opts.DatabasePath,
		cache:          opts.Cache,
		staleThreshold: opts.StaleThreshold,
		pruneAfter:     opts.PruneAfter,
	}
}

// Sync runs one full cycle: queue recovery and drain, push, pull, photo file
// sync, then finalize. Per-record failures are queued and never fail the
// cycle; the returned error is reserved for cycle-level failures.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return &SyncResult{Error: msgInProgress}, apperrors.New(apperrors.ErrSyncInProgress, msgInProgress)
	}
	defer e.running.Store(false)

	start := e.clock.Now()
	result := &SyncResult{}
	defer func() {
		result.Duration = e.clock.Now().Sub(start)
	}()

	// Without a remote nothing can confirm a write, so nothing may be marked synced.
	if e.remote == nil {
		result.Error = msgNoRemote
		return result, apperrors.New(apperrors.ErrSyncNotConfigured, msgNoRemote)
	}

	if !e.network.IsOnline() {
		result.Error = msgOffline
		if err := e.meta.failed(msgOffline); err != nil {
			logging.Error("Failed to record sync error", err)
		}
		logging.Info("Sync skipped, device offline")
		return result, apperrors.New(apperrors.ErrSyncOffline, msgOffline)
	}

	logging.Info("Sync started")

	if err := e.runCycle(ctx, start, result); err != nil {
		result.Error = err.Error()
		if saveErr := e.meta.failed(result.Error); saveErr != nil {
			logging.Error("Failed to record sync error", saveErr)
		}
		logging.ErrorWithCode("Sync failed", string(apperrors.ErrSyncFailed), err)
		return result, apperrors.Wrap(apperrors.ErrSyncFailed, "sync cycle failed", err)
	}

	// The pull window starts at the cycle start so rows written remotely
	// while this cycle ran are fetched next time.
	if err := e.meta.succeeded(start); err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Success = true

	logging.Info("Sync finished", map[string]interface{}{
		"pushed":         result.Pushed,
		"pulled":         result.Pulled,
		"conflicts":      result.Conflicts,
		"escalated":      result.Escalated,
		"enqueued":       result.Enqueued,
		"retried_ok":     result.RetriedOK,
		"retried_failed": result.RetriedFailed,
		"duration_ms":    e.clock.Now().Sub(start).Milliseconds(),
	})
	return result, nil
}

func (e *Engine) runCycle(ctx context.Context, start time.Time, result *SyncResult) error {
	if _, err := e.queue.RecoverStaleItems(e.staleThreshold); err != nil {
		return err
	}
	if err := e.drainQueue(ctx, result); err != nil {
		return err
	}
	if err := e.push(ctx, result); err != nil {
		return err
	}
	if err := e.pull(ctx, start, result); err != nil {
		return err
	}

	if e.photos != nil && e.network.IsOnWiFi() {
		pr, err := e.photos.Sync(ctx)
		if err != nil {
			return err
		}
		result.PhotosUploaded = pr.Uploaded
		result.PhotosDownloaded = pr.Downloaded
	}

	if _, err := e.queue.Prune(e.pruneAfter); err != nil {
		return err
	}
	if _, err := e.conflicts.Prune(); err != nil {
		return err
	}
	return nil
}

// CheckQuickLogBacklog counts quick logs still awaiting enrichment and records
// a quick_log_backlog escalation when there are more than the threshold.
func (e *Engine) CheckQuickLogBacklog(ctx context.Context) (int, error) {
	n, err := e.store.CountUnenrichedQuickLogs(ctx)
	if err != nil {
		return 0, err
	}
	if n <= QuickLogBacklogThreshold {
		return n, nil
	}

	_, err = e.conflicts.Append(conflictlog.Entry{
		TableName:    models.TableWorkOrders,
		Escalations:  []string{conflict.EscalationQuickLogBacklog},
		AutoResolved: false,
		Resolutions: []models.ConflictResolution{{
			FieldName:      "needs_enrichment",
			LocalValue:     n,
			ResolvedValue:  n,
			Rule:           "supervisor_review",
			RequiresReview: true,
		}},
	})
	if err != nil {
		return n, err
	}
	logging.Warn("Quick log backlog above threshold", map[string]interface{}{
		"count":     n,
		"threshold": QuickLogBacklogThreshold,
	})
	return n, nil
}
