package models

// WorkOrderPhoto points at a photo file. The bytes sync separately.
type WorkOrderPhoto struct {
	SyncableRecord
	WorkOrderID string  `db:"work_order_id" json:"work_order_id"`
	LocalURI    *string `db:"local_uri" json:"local_uri,omitempty"`
	RemoteURL   *string `db:"remote_url" json:"remote_url,omitempty"`
	Caption     *string `db:"caption" json:"caption,omitempty"`
	TakenAt     int64   `db:"taken_at" json:"taken_at"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
}

// TableName returns the table name for WorkOrderPhoto.
func (WorkOrderPhoto) TableName() string {
	return TablePhotos
}

// NeedsUpload reports whether the file exists locally but not remotely.
func (p *WorkOrderPhoto) NeedsUpload() bool {
	return p.LocalURI != nil && *p.LocalURI != "" && (p.RemoteURL == nil || *p.RemoteURL == "")
}

// NeedsDownload reports whether the file exists remotely but not locally.
func (p *WorkOrderPhoto) NeedsDownload() bool {
	return p.RemoteURL != nil && *p.RemoteURL != "" && (p.LocalURI == nil || *p.LocalURI == "")
}
