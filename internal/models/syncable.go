// Package models provides data model definitions for the field sync core.
package models

import "time"

// Table names shared by the local store, the remote API and the retry queue.
const (
	TableWorkOrders    = "work_orders"
	TableAssets        = "assets"
	TableMeterReadings = "meter_readings"
	TablePhotos        = "work_order_photos"
)

// SyncTables lists the synced tables in apply order.
var SyncTables = []string{TableAssets, TableWorkOrders, TableMeterReadings, TablePhotos}

// LocalSyncStatus is the sync state of a local record.
type LocalSyncStatus string

const (
	// SyncPending means local mutations have not been confirmed remotely.
	SyncPending LocalSyncStatus = "pending"
	// SyncSynced means the record mirrors the remote row at ServerUpdatedAt.
	SyncSynced LocalSyncStatus = "synced"
	// SyncConflict means an escalation is awaiting human review.
	SyncConflict LocalSyncStatus = "conflict"
)

// SyncableRecord holds the fields every synced entity carries.
type SyncableRecord struct {
	ID              string          `db:"id" json:"id"`
	ServerID        *string         `db:"server_id" json:"server_id,omitempty"`
	LocalSyncStatus LocalSyncStatus `db:"local_sync_status" json:"local_sync_status"`
	LocalUpdatedAt  int64           `db:"local_updated_at" json:"local_updated_at"`
	ServerUpdatedAt *int64          `db:"server_updated_at" json:"server_updated_at,omitempty"`
}

// Sync returns the embedded sync fields, letting callers treat entities uniformly.
func (r *SyncableRecord) Sync() *SyncableRecord {
	return r
}

// IsPending reports whether local changes await a push.
func (r *SyncableRecord) IsPending() bool {
	return r.LocalSyncStatus == SyncPending
}

// HasServerID reports whether the record has been confirmed remotely.
func (r *SyncableRecord) HasServerID() bool {
	return r.ServerID != nil && *r.ServerID != ""
}

// MarkSynced stamps the remote identity and timestamp after a confirmed write.
func (r *SyncableRecord) MarkSynced(serverID string, serverUpdatedAt int64) {
	r.ServerID = &serverID
	r.ServerUpdatedAt = &serverUpdatedAt
	r.LocalSyncStatus = SyncSynced
}

// Touch marks a local mutation at now.
func (r *SyncableRecord) Touch(now time.Time) {
	r.LocalSyncStatus = SyncPending
	r.LocalUpdatedAt = now.UnixMilli()
}

// Syncable is implemented by every entity that embeds SyncableRecord.
type Syncable interface {
	Sync() *SyncableRecord
	TableName() string
}

// Millis converts an optional time into optional epoch milliseconds.
func Millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// Time converts optional epoch milliseconds into an optional UTC time.
func Time(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
