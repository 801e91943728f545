// Package remote talks to the central server's row API. Rows mirror the
// server schema with snake_case names and real timestamps; the sync engine
// maps them onto local models.
package remote

import (
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// WorkOrderRow is a work_orders row.
type WorkOrderRow struct {
	ID                  string                 `json:"id"`
	SiteID              string                 `json:"site_id"`
	AssetID             *string                `json:"asset_id"`
	Title               string                 `json:"title"`
	Description         *string                `json:"description"`
	Priority            models.Priority        `json:"priority"`
	Status              models.WorkOrderStatus `json:"status"`
	AssignedTo          *string                `json:"assigned_to"`
	CompletedBy         *string                `json:"completed_by"`
	DueDate             *time.Time             `json:"due_date"`
	StartedAt           *time.Time             `json:"started_at"`
	CompletedAt         *time.Time             `json:"completed_at"`
	CompletionNotes     *string                `json:"completion_notes"`
	FailureType         *string                `json:"failure_type"`
	TimeSpentMinutes    *int                   `json:"time_spent_minutes"`
	SignatureImageURL   *string                `json:"signature_image_url"`
	SignatureTimestamp  *time.Time             `json:"signature_timestamp"`
	SignatureHash       *string                `json:"signature_hash"`
	VoiceNoteURL        *string                `json:"voice_note_url"`
	VoiceNoteConfidence *float64               `json:"voice_note_confidence"`
	NeedsEnrichment     bool                   `json:"needs_enrichment"`
	IsQuickLog          bool                   `json:"is_quick_log"`
	CreatedAt           *time.Time             `json:"created_at,omitempty"`
	UpdatedAt           *time.Time             `json:"updated_at,omitempty"`
}

// AssetRow is an assets row.
type AssetRow struct {
	ID                  string             `json:"id"`
	SiteID              string             `json:"site_id"`
	AssetNumber         string             `json:"asset_number"`
	Name                string             `json:"name"`
	Description         *string            `json:"description"`
	Category            *string            `json:"category"`
	Status              models.AssetStatus `json:"status"`
	Location            *string            `json:"location"`
	MeterType           *string            `json:"meter_type"`
	MeterUnit           *string            `json:"meter_unit"`
	MeterCurrentReading *float64           `json:"meter_current_reading"`
	CreatedAt           *time.Time         `json:"created_at,omitempty"`
	UpdatedAt           *time.Time         `json:"updated_at,omitempty"`
}

// MeterReadingRow is a meter_readings row.
type MeterReadingRow struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"asset_id"`
	ReadingValue float64    `json:"reading_value"`
	ReadingDate  time.Time  `json:"reading_date"`
	RecordedBy   *string    `json:"recorded_by"`
	Notes        *string    `json:"notes"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// PhotoRow is a work_order_photos row. Only the remote URL travels; local
// file paths are device specific.
type PhotoRow struct {
	ID          string     `json:"id"`
	WorkOrderID string     `json:"work_order_id"`
	PhotoURL    *string    `json:"photo_url"`
	Caption     *string    `json:"caption"`
	TakenAt     time.Time  `json:"taken_at"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// UpsertResult is what the server returns for a written row.
type UpsertResult struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}
