package models

// AssetStatus is the operating condition of an asset.
type AssetStatus string

const (
	AssetOperational AssetStatus = "operational"
	AssetLimited     AssetStatus = "limited"
	AssetDown        AssetStatus = "down"
)

// Severity orders statuses by safety impact, operational lowest.
func (s AssetStatus) Severity() int {
	switch s {
	case AssetOperational:
		return 1
	case AssetLimited:
		return 2
	case AssetDown:
		return 3
	default:
		return 0
	}
}

// Asset is a piece of equipment at a site.
type Asset struct {
	SyncableRecord
	SiteID              string      `db:"site_id" json:"site_id"`
	AssetNumber         string      `db:"asset_number" json:"asset_number"`
	Name                string      `db:"name" json:"name"`
	Description         *string     `db:"description" json:"description,omitempty"`
	Category            *string     `db:"category" json:"category,omitempty"`
	Status              AssetStatus `db:"status" json:"status"`
	Location            *string     `db:"location" json:"location,omitempty"`
	MeterType           *string     `db:"meter_type" json:"meter_type,omitempty"`
	MeterUnit           *string     `db:"meter_unit" json:"meter_unit,omitempty"`
	MeterCurrentReading *float64    `db:"meter_current_reading" json:"meter_current_reading,omitempty"`
	CreatedAt           int64       `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Asset.
func (Asset) TableName() string {
	return TableAssets
}
