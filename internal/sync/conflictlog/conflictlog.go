// Package conflictlog keeps the audit trail of conflict decisions. Entries are
// immutable once written; reviewer metadata is the only thing attached later.
package conflictlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

const (
	// StorageKey is the key-value entry holding the serialized log.
	StorageKey = "conflict_log"
	// MaxEntries caps the number of retained entries.
	MaxEntries = 500
	// Retention is how long entries are kept.
	Retention = 30 * 24 * time.Hour
)

// Entry is one logged conflict.
type Entry = models.ConflictLogEntry

// Log is the persistent conflict log, newest entry first.
type Log struct {
	mu    sync.Mutex
	store kv.Store
	clock clock.Clock
}

// New creates a Log over store.
func New(store kv.Store, c clock.Clock) *Log {
	return &Log{store: store, clock: c}
}

func (l *Log) load() ([]Entry, error) {
	var entries []Entry
	if _, err := kv.GetJSON(l.store, StorageKey, &entries); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreRead, "load conflict log", err)
	}
	return entries, nil
}

func (l *Log) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := kv.SetJSON(l.store, StorageKey, entries); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "save conflict log", err)
	}
	return nil
}

func (l *Log) all() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// trim applies retention: entries older than Retention go first, then the
// oldest beyond MaxEntries.
func (l *Log) trim(entries []Entry) []Entry {
	cutoff := l.clock.Now().Add(-Retention).UnixMilli()
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}
	if len(kept) > MaxEntries {
		kept = kept[:MaxEntries]
	}
	return kept
}

// Append records a conflict. A missing ID or Timestamp is filled in.
func (l *Log) Append(entry Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = l.clock.Now().UnixMilli()
	}
	if entry.Escalations == nil {
		entry.Escalations = []string{}
	}
	if entry.Resolutions == nil {
		entry.Resolutions = []models.ConflictResolution{}
	}

	entries, err := l.load()
	if err != nil {
		return entry, err
	}
	entries = append([]Entry{entry}, entries...)
	if err := l.save(l.trim(entries)); err != nil {
		return entry, err
	}

	fields := map[string]interface{}{
		"table":         entry.TableName,
		"record_id":     uuid.Short(entry.LocalRecordID),
		"auto_resolved": entry.AutoResolved,
		"resolutions":   len(entry.Resolutions),
	}
	if entry.AutoResolved {
		logging.Info("Conflict auto-resolved", fields)
	} else {
		fields["escalations"] = entry.Escalations
		logging.Warn("Conflict escalated for review", fields)
	}
	return entry, nil
}

// Prune applies retention and returns how many entries were dropped.
func (l *Log) Prune() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return 0, err
	}
	before := len(entries)
	entries = l.trim(entries)
	if len(entries) == before {
		return 0, nil
	}
	return before - len(entries), l.save(entries)
}

// Recent returns up to n newest entries. n <= 0 returns all.
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.all()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (l *Log) filter(keep func(*Entry) bool) ([]Entry, error) {
	entries, err := l.all()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for i := range entries {
		if keep(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

// ForRecord returns the entries logged for one local record.
func (l *Log) ForRecord(tableName, recordID string) ([]Entry, error) {
	return l.filter(func(e *Entry) bool {
		return e.TableName == tableName && e.LocalRecordID == recordID
	})
}

// Escalated returns the entries that were not auto-resolved.
func (l *Log) Escalated() ([]Entry, error) {
	return l.filter(func(e *Entry) bool { return e.Escalated() })
}

// Unreviewed returns escalated entries that nobody has reviewed yet.
func (l *Log) Unreviewed() ([]Entry, error) {
	return l.filter(func(e *Entry) bool { return e.Escalated() && e.Review == nil })
}

// InRange returns entries logged in [from, to].
func (l *Log) InRange(from, to time.Time) ([]Entry, error) {
	lo, hi := from.UnixMilli(), to.UnixMilli()
	return l.filter(func(e *Entry) bool {
		return e.Timestamp >= lo && e.Timestamp <= hi
	})
}

// Get returns one entry by ID.
func (l *Log) Get(id string) (Entry, error) {
	entries, err := l.all()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("conflict %s not found", id))
}

// MarkReviewed attaches reviewer metadata to an entry. The recorded decision
// itself is left untouched.
func (l *Log) MarkReviewed(id, reviewer, notes string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		entries[i].Review = &models.ConflictReview{
			ReviewedBy: reviewer,
			ReviewedAt: l.clock.Now().UnixMilli(),
			Notes:      notes,
		}
		if err := l.save(entries); err != nil {
			return err
		}
		logging.Info("Conflict reviewed", map[string]interface{}{
			"conflict_id": id,
			"reviewer":    reviewer,
		})
		return nil
	}
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("conflict %s not found", id))
}

// Clear drops every entry.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(nil)
}
