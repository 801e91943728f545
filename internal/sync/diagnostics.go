package sync

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kimhsiao/fieldsync/internal/sync/photo"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

// diagnosticsLimit caps the error and conflict lists in an export.
const diagnosticsLimit = 20

// Diagnostics is a support snapshot. It carries ids, counts and error text,
// never work order content, photo bytes or personal data.
type Diagnostics struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	Device          DeviceInfo          `json:"device"`
	Storage         StorageInfo         `json:"storage"`
	Status          Status              `json:"status"`
	RecentErrors    []ErrorSummary      `json:"recent_errors"`
	RecentConflicts []ConflictSummary   `json:"recent_conflicts"`
	Queue           queue.Stats         `json:"queue"`
	Uploads         *photo.TrackerStats `json:"uploads,omitempty"`
}

// DeviceInfo describes the runtime and network.
type DeviceInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	Online    bool   `json:"online"`
	WiFi      bool   `json:"wifi"`
}

// StorageInfo reports on-disk usage.
type StorageInfo struct {
	DatabaseBytes   int64  `json:"database_bytes"`
	Database        string `json:"database"`
	PhotoCacheFiles int    `json:"photo_cache_files"`
	PhotoCacheBytes int64  `json:"photo_cache_bytes"`
	PhotoCache      string `json:"photo_cache"`
}

// ErrorSummary is one retry queue failure.
type ErrorSummary struct {
	ItemID        string `json:"item_id"`
	RecordID      string `json:"record_id"`
	TableName     string `json:"table_name"`
	State         string `json:"state"`
	Category      string `json:"category,omitempty"`
	Attempts      int    `json:"attempts"`
	LastAttemptAt *int64 `json:"last_attempt_at,omitempty"`
	Error         string `json:"error"`
}

// ConflictSummary is one conflict log entry without field values.
type ConflictSummary struct {
	ID           string   `json:"id"`
	Timestamp    int64    `json:"timestamp"`
	TableName    string   `json:"table_name"`
	RecordID     string   `json:"record_id"`
	Fields       []string `json:"fields"`
	Escalations  []string `json:"escalations,omitempty"`
	AutoResolved bool     `json:"auto_resolved"`
	Reviewed     bool     `json:"reviewed"`
}

// Diagnostics collects a support snapshot.
func (e *Engine) Diagnostics(ctx context.Context) (Diagnostics, error) {
	d := Diagnostics{
		GeneratedAt: e.clock.Now().UTC(),
		Device: DeviceInfo{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			Online:    e.network.IsOnline(),
			WiFi:      e.network.IsOnWiFi(),
		},
	}

	var err error
	if d.Status, err = e.Status(ctx); err != nil {
		return d, err
	}
	if d.Storage, err = e.storageInfo(); err != nil {
		return d, err
	}
	if d.Queue, err = e.queue.Stats(); err != nil {
		return d, err
	}
	if d.RecentErrors, err = e.recentErrors(); err != nil {
		return d, err
	}
	if d.RecentConflicts, err = e.recentConflicts(); err != nil {
		return d, err
	}
	if e.photos != nil {
		ts, err := e.photos.Tracker().Stats()
		if err != nil {
			return d, err
		}
		d.Uploads = &ts
	}
	return d, nil
}

// ExportDiagnostics renders Diagnostics as indented JSON.
func (e *Engine) ExportDiagnostics(ctx context.Context) ([]byte, error) {
	d, err := e.Diagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(d, "", "  ")
}

func (e *Engine) storageInfo() (StorageInfo, error) {
	var s StorageInfo
	if e.databasePath != "" {
		if fi, err := os.Stat(e.databasePath); err == nil {
			s.DatabaseBytes = fi.Size()
		}
	}
	s.Database = humanize.Bytes(uint64(s.DatabaseBytes))

	if e.cache != nil {
		files, bytes, err := e.cache.Usage()
		if err != nil {
			return s, err
		}
		s.PhotoCacheFiles, s.PhotoCacheBytes = files, bytes
	}
	s.PhotoCache = humanize.Bytes(uint64(s.PhotoCacheBytes))
	return s, nil
}

func (e *Engine) recentErrors() ([]ErrorSummary, error) {
	items, err := e.queue.List()
	if err != nil {
		return nil, err
	}

	var out []ErrorSummary
	for _, item := range items {
		if item.LastError == "" {
			continue
		}
		out = append(out, ErrorSummary{
			ItemID:        uuid.Short(item.ID),
			RecordID:      uuid.Short(item.RecordID),
			TableName:     item.TableName,
			State:         string(item.State),
			Category:      item.ErrorCategory,
			Attempts:      item.Attempts,
			LastAttemptAt: item.LastAttemptAt,
			Error:         item.LastError,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return attemptedAt(out[i]) > attemptedAt(out[j])
	})
	if len(out) > diagnosticsLimit {
		out = out[:diagnosticsLimit]
	}
	return out, nil
}

func attemptedAt(s ErrorSummary) int64 {
	if s.LastAttemptAt == nil {
		return 0
	}
	return *s.LastAttemptAt
}

func (e *Engine) recentConflicts() ([]ConflictSummary, error) {
	entries, err := e.conflicts.Recent(diagnosticsLimit)
	if err != nil {
		return nil, err
	}

	out := make([]ConflictSummary, 0, len(entries))
	for _, entry := range entries {
		fields := make([]string, 0, len(entry.Resolutions))
		for _, r := range entry.Resolutions {
			fields = append(fields, r.FieldName)
		}
		out = append(out, ConflictSummary{
			ID:           uuid.Short(entry.ID),
			Timestamp:    entry.Timestamp,
			TableName:    entry.TableName,
			RecordID:     uuid.Short(entry.LocalRecordID),
			Fields:       fields,
			Escalations:  entry.Escalations,
			AutoResolved: entry.AutoResolved,
			Reviewed:     entry.Review != nil,
		})
	}
	return out, nil
}
