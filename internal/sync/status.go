package sync

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
)

// Key-value entries holding sync metadata.
const (
	KeyLastSyncAt = "last_sync_at"
	KeySyncError  = "sync_error"
)

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
	SyncStatusOffline SyncStatus = "offline"
)

// Status is a point-in-time view of sync health for status displays.
type Status struct {
	State         SyncStatus `json:"state"`
	PendingCount  int        `json:"pending_count"`
	ConflictCount int        `json:"conflict_count"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	// QueueWaiting counts retry items automatic retry may still resolve.
	QueueWaiting int `json:"queue_waiting"`
	// QueueBlocked counts retry items that need user intervention.
	QueueBlocked int `json:"queue_blocked"`
}

// metadata persists the last successful sync time and the last cycle error.
type metadata struct {
	store kv.Store
}

func (m metadata) lastSyncAt() (*time.Time, error) {
	raw, ok, err := m.store.Get(KeyLastSyncAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreRead, "read last sync time", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreRead, "parse last sync time", err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func (m metadata) lastError() (string, error) {
	msg, _, err := m.store.Get(KeySyncError)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStoreRead, "read sync error", err)
	}
	return msg, nil
}

func (m metadata) succeeded(at time.Time) error {
	if err := m.store.Set(KeyLastSyncAt, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "save last sync time", err)
	}
	if err := m.store.Remove(KeySyncError); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "clear sync error", err)
	}
	return nil
}

func (m metadata) failed(msg string) error {
	if err := m.store.Set(KeySyncError, msg); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "save sync error", err)
	}
	return nil
}

// LastSync returns when the last cycle completed, nil if none has.
func (e *Engine) LastSync() (*time.Time, error) {
	return e.meta.lastSyncAt()
}

// Status reports the current sync state with pending and queue counts.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var s Status
	var err error

	if s.PendingCount, err = e.store.CountPending(ctx); err != nil {
		return s, err
	}
	if s.ConflictCount, err = e.store.CountConflicts(ctx); err != nil {
		return s, err
	}
	if s.LastSyncAt, err = e.meta.lastSyncAt(); err != nil {
		return s, err
	}
	if s.LastError, err = e.meta.lastError(); err != nil {
		return s, err
	}
	qs, err := e.queue.Stats()
	if err != nil {
		return s, err
	}
	s.QueueWaiting, s.QueueBlocked = qs.Waiting, qs.Blocked

	switch {
	case e.running.Load():
		s.State = SyncStatusSyncing
	case !e.network.IsOnline():
		s.State = SyncStatusOffline
	case s.LastError != "":
		s.State = SyncStatusError
	default:
		s.State = SyncStatusIdle
	}
	return s, nil
}
