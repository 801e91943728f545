package sync

import (
	"context"
	"time"
)

// EngineInterface defines the sync operations the scheduler and CLI drive.
// This interface allows for mocking in tests and alternative implementations.
type EngineInterface interface {
	// Sync runs one full cycle.
	// Returns the cycle summary, and an error only for cycle-level failures.
	Sync(ctx context.Context) (*SyncResult, error)

	// CheckQuickLogBacklog counts unenriched quick logs, escalating past the threshold.
	CheckQuickLogBacklog(ctx context.Context) (int, error)

	// Status returns the current sync status snapshot.
	Status(ctx context.Context) (Status, error)

	// LastSync returns when the last cycle completed.
	LastSync() (*time.Time, error)
}
