package models

import "time"

// ConflictResolution records how one field of a conflicting record was resolved.
type ConflictResolution struct {
	FieldName      string      `json:"field_name"`
	LocalValue     interface{} `json:"local_value"`
	RemoteValue    interface{} `json:"remote_value"`
	ResolvedValue  interface{} `json:"resolved_value"`
	Rule           string      `json:"rule"`
	RequiresReview bool        `json:"requires_review"`
}

// ConflictLogEntry is an immutable audit record of one conflict event.
type ConflictLogEntry struct {
	ID             string               `json:"id"`
	Timestamp      int64                `json:"timestamp"`
	TableName      string               `json:"table_name"`
	LocalRecordID  string               `json:"local_record_id"`
	ServerRecordID string               `json:"server_record_id,omitempty"`
	Resolutions    []ConflictResolution `json:"resolutions"`
	Escalations    []string             `json:"escalations"`
	AutoResolved   bool                 `json:"auto_resolved"`
	Review         *ConflictReview      `json:"review,omitempty"`
}

// ConflictReview is reviewer metadata attached after the fact.
type ConflictReview struct {
	ReviewedBy string `json:"reviewed_by"`
	ReviewedAt int64  `json:"reviewed_at"`
	Notes      string `json:"notes,omitempty"`
}

// TimestampTime returns the Timestamp as time.Time.
func (e *ConflictLogEntry) TimestampTime() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Escalated reports whether the conflict required human review.
func (e *ConflictLogEntry) Escalated() bool {
	return !e.AutoResolved
}
