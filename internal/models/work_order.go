package models

// Priority is the urgency of a work order.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// Rank orders priorities from low (1) to emergency (4). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityEmergency:
		return 4
	default:
		return 0
	}
}

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	StatusOpen       WorkOrderStatus = "open"
	StatusInProgress WorkOrderStatus = "in_progress"
	StatusCompleted  WorkOrderStatus = "completed"
)

// Signature is a captured customer or technician sign-off.
type Signature struct {
	ImageURL  string `json:"image_url"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// WorkOrder is a unit of field work against an asset.
type WorkOrder struct {
	SyncableRecord
	SiteID              string          `db:"site_id" json:"site_id"`
	AssetID             *string         `db:"asset_id" json:"asset_id,omitempty"`
	Title               string          `db:"title" json:"title"`
	Description         *string         `db:"description" json:"description,omitempty"`
	Priority            Priority        `db:"priority" json:"priority"`
	Status              WorkOrderStatus `db:"status" json:"status"`
	AssignedTo          *string         `db:"assigned_to" json:"assigned_to,omitempty"`
	CompletedBy         *string         `db:"completed_by" json:"completed_by,omitempty"`
	DueDate             *int64          `db:"due_date" json:"due_date,omitempty"`
	StartedAt           *int64          `db:"started_at" json:"started_at,omitempty"`
	CompletedAt         *int64          `db:"completed_at" json:"completed_at,omitempty"`
	CompletionNotes     *string         `db:"completion_notes" json:"completion_notes,omitempty"`
	FailureType         *string         `db:"failure_type" json:"failure_type,omitempty"`
	TimeSpentMinutes    *int            `db:"time_spent_minutes" json:"time_spent_minutes,omitempty"`
	Signature           *Signature      `json:"signature,omitempty"`
	VoiceNoteURL        *string         `db:"voice_note_url" json:"voice_note_url,omitempty"`
	VoiceNoteConfidence *float64        `db:"voice_note_confidence" json:"voice_note_confidence,omitempty"`
	NeedsEnrichment     bool            `db:"needs_enrichment" json:"needs_enrichment"`
	IsQuickLog          bool            `db:"is_quick_log" json:"is_quick_log"`
	CreatedAt           int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for WorkOrder.
func (WorkOrder) TableName() string {
	return TableWorkOrders
}

// IsCompleted reports whether the work order is closed out.
func (w *WorkOrder) IsCompleted() bool {
	return w.Status == StatusCompleted
}
