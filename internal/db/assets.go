package db

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var assets = entity[models.Asset]{
	table: models.TableAssets,
	columns: []string{
		"site_id", "asset_number", "name", "description", "category", "status",
		"location", "meter_type", "meter_unit", "meter_current_reading", "created_at",
	},
	dest: func(a *models.Asset) ([]interface{}, func()) {
		return []interface{}{
			&a.SiteID, &a.AssetNumber, &a.Name, &a.Description, &a.Category, &a.Status,
			&a.Location, &a.MeterType, &a.MeterUnit, &a.MeterCurrentReading, &a.CreatedAt,
		}, nil
	},
	values: func(a *models.Asset) []interface{} {
		return []interface{}{
			a.SiteID, a.AssetNumber, a.Name, a.Description, a.Category, a.Status,
			a.Location, a.MeterType, a.MeterUnit, a.MeterCurrentReading, a.CreatedAt,
		}
	},
	sync: func(a *models.Asset) *models.SyncableRecord { return &a.SyncableRecord },
}

// CreateAsset records a new locally created asset as pending.
func (s *Store) CreateAsset(ctx context.Context, a *models.Asset) error {
	now := s.clock.Now()
	if a.ID == "" {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AssetOperational
	}
	a.CreatedAt = now.UnixMilli()
	a.Touch(now)
	return s.InsertAsset(ctx, a)
}

// InsertAsset writes an asset as given.
func (s *Store) InsertAsset(ctx context.Context, a *models.Asset) error {
	if err := assets.insert(ctx, s.q, a); err != nil {
		return err
	}
	s.changed(models.TableAssets)
	return nil
}

// UpdateAsset overwrites an asset as given.
func (s *Store) UpdateAsset(ctx context.Context, a *models.Asset) error {
	if err := assets.update(ctx, s.q, a); err != nil {
		return err
	}
	s.changed(models.TableAssets)
	return nil
}

// EditAsset applies a local mutation and marks the asset pending.
func (s *Store) EditAsset(ctx context.Context, id string, fn func(*models.Asset)) (*models.Asset, error) {
	a, err := s.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(a)
	a.Touch(s.clock.Now())
	if err := s.UpdateAsset(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	return assets.get(ctx, s.q, "id = ?", id)
}

func (s *Store) GetAssetByServerID(ctx context.Context, serverID string) (*models.Asset, error) {
	return assets.get(ctx, s.q, "server_id = ?", serverID)
}

func (s *Store) PendingAssets(ctx context.Context) ([]*models.Asset, error) {
	return assets.list(ctx, s.q, "local_sync_status = ?", "local_updated_at ASC", models.SyncPending)
}
