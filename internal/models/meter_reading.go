package models

// MeterReading is an append-style reading of an asset meter.
type MeterReading struct {
	SyncableRecord
	AssetID      string  `db:"asset_id" json:"asset_id"`
	ReadingValue float64 `db:"reading_value" json:"reading_value"`
	ReadingDate  int64   `db:"reading_date" json:"reading_date"`
	RecordedBy   *string `db:"recorded_by" json:"recorded_by,omitempty"`
	Notes        *string `db:"notes" json:"notes,omitempty"`
	CreatedAt    int64   `db:"created_at" json:"created_at"`
}

// TableName returns the table name for MeterReading.
func (MeterReading) TableName() string {
	return TableMeterReadings
}
