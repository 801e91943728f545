package db

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var meterReadings = entity[models.MeterReading]{
	table:   models.TableMeterReadings,
	columns: []string{"asset_id", "reading_value", "reading_date", "recorded_by", "notes", "created_at"},
	dest: func(m *models.MeterReading) ([]interface{}, func()) {
		return []interface{}{&m.AssetID, &m.ReadingValue, &m.ReadingDate, &m.RecordedBy, &m.Notes, &m.CreatedAt}, nil
	},
	values: func(m *models.MeterReading) []interface{} {
		return []interface{}{m.AssetID, m.ReadingValue, m.ReadingDate, m.RecordedBy, m.Notes, m.CreatedAt}
	},
	sync: func(m *models.MeterReading) *models.SyncableRecord { return &m.SyncableRecord },
}

// CreateMeterReading records a new reading as pending.
func (s *Store) CreateMeterReading(ctx context.Context, m *models.MeterReading) error {
	now := s.clock.Now()
	if m.ID == "" {
		m.ID = uuid.New()
	}
	if m.ReadingDate == 0 {
		m.ReadingDate = now.UnixMilli()
	}
	m.CreatedAt = now.UnixMilli()
	m.Touch(now)
	return s.InsertMeterReading(ctx, m)
}

func (s *Store) InsertMeterReading(ctx context.Context, m *models.MeterReading) error {
	if err := meterReadings.insert(ctx, s.q, m); err != nil {
		return err
	}
	s.changed(models.TableMeterReadings)
	return nil
}

func (s *Store) UpdateMeterReading(ctx context.Context, m *models.MeterReading) error {
	if err := meterReadings.update(ctx, s.q, m); err != nil {
		return err
	}
	s.changed(models.TableMeterReadings)
	return nil
}

// RekeyMeterReading gives a reading a new local id with no remote identity
// and leaves it pending, so it is pushed as a new reading. Used when two readings collided on one id and both must be kept.
func (s *Store) RekeyMeterReading(ctx context.Context, oldID, newID string) error {
	if err := meterReadings.rekey(ctx, s.q, oldID, newID); err != nil {
		return err
	}
	s.changed(models.TableMeterReadings)
	return nil
}

func (s *Store) GetMeterReading(ctx context.Context, id string) (*models.MeterReading, error) {
	return meterReadings.get(ctx, s.q, "id = ?", id)
}

func (s *Store) GetMeterReadingByServerID(ctx context.Context, serverID string) (*models.MeterReading, error) {
	return meterReadings.get(ctx, s.q, "server_id = ?", serverID)
}

func (s *Store) PendingMeterReadings(ctx context.Context) ([]*models.MeterReading, error) {
	return meterReadings.list(ctx, s.q, "local_sync_status = ?", "reading_date ASC", models.SyncPending)
}

// MeterReadingsForAsset lists an asset's readings in chronological order.
func (s *Store) MeterReadingsForAsset(ctx context.Context, assetID string) ([]*models.MeterReading, error) {
	return meterReadings.list(ctx, s.q, "asset_id = ?", "reading_date ASC", assetID)
}
