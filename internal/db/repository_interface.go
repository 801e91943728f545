package db

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// WorkOrderRepository defines work order persistence used by sync.
type WorkOrderRepository interface {
	InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error
	UpdateWorkOrder(ctx context.Context, wo *models.WorkOrder) error
	GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error)
	GetWorkOrderByServerID(ctx context.Context, serverID string) (*models.WorkOrder, error)
	PendingWorkOrders(ctx context.Context) ([]*models.WorkOrder, error)
	CountUnenrichedQuickLogs(ctx context.Context) (int, error)
}

// AssetRepository defines asset persistence used by sync.
type AssetRepository interface {
	InsertAsset(ctx context.Context, a *models.Asset) error
	UpdateAsset(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	GetAssetByServerID(ctx context.Context, serverID string) (*models.Asset, error)
	PendingAssets(ctx context.Context) ([]*models.Asset, error)
}

// MeterReadingRepository defines meter reading persistence used by sync.
type MeterReadingRepository interface {
	InsertMeterReading(ctx context.Context, m *models.MeterReading) error
	UpdateMeterReading(ctx context.Context, m *models.MeterReading) error
	GetMeterReading(ctx context.Context, id string) (*models.MeterReading, error)
	GetMeterReadingByServerID(ctx context.Context, serverID string) (*models.MeterReading, error)
	RekeyMeterReading(ctx context.Context, oldID, newID string) error
	PendingMeterReadings(ctx context.Context) ([]*models.MeterReading, error)
}

// PhotoRepository defines photo pointer persistence used by sync.
type PhotoRepository interface {
	InsertPhoto(ctx context.Context, p *models.WorkOrderPhoto) error
	UpdatePhoto(ctx context.Context, p *models.WorkOrderPhoto) error
	GetPhoto(ctx context.Context, id string) (*models.WorkOrderPhoto, error)
	GetPhotoByServerID(ctx context.Context, serverID string) (*models.WorkOrderPhoto, error)
	PendingPhotos(ctx context.Context) ([]*models.WorkOrderPhoto, error)
	PhotosForWorkOrder(ctx context.Context, workOrderID string) ([]*models.WorkOrderPhoto, error)
	PhotosPendingUpload(ctx context.Context) ([]*models.WorkOrderPhoto, error)
	PhotosMissingLocally(ctx context.Context) ([]*models.WorkOrderPhoto, error)
}

// SyncRepository combines everything the sync engine reads and writes.
type SyncRepository interface {
	WorkOrderRepository
	AssetRepository
	MeterReadingRepository
	PhotoRepository

	CountPending(ctx context.Context) (int, error)
	CountConflicts(ctx context.Context) (int, error)

	// WithTx runs fn inside one atomic write transaction.
	WithTx(ctx context.Context, fn func(tx SyncRepository) error) error
}

// Ensure *Store implements the interfaces at compile time.
var (
	_ WorkOrderRepository    = (*Store)(nil)
	_ AssetRepository        = (*Store)(nil)
	_ MeterReadingRepository = (*Store)(nil)
	_ PhotoRepository        = (*Store)(nil)
	_ SyncRepository         = (*Store)(nil)
)
