package db

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var photos = entity[models.WorkOrderPhoto]{
	table:   models.TablePhotos,
	columns: []string{"work_order_id", "local_uri", "remote_url", "caption", "taken_at", "created_at"},
	dest: func(p *models.WorkOrderPhoto) ([]interface{}, func()) {
		return []interface{}{&p.WorkOrderID, &p.LocalURI, &p.RemoteURL, &p.Caption, &p.TakenAt, &p.CreatedAt}, nil
	},
	values: func(p *models.WorkOrderPhoto) []interface{} {
		return []interface{}{p.WorkOrderID, p.LocalURI, p.RemoteURL, p.Caption, p.TakenAt, p.CreatedAt}
	},
	sync: func(p *models.WorkOrderPhoto) *models.SyncableRecord { return &p.SyncableRecord },
}

// CreatePhoto records a newly captured photo as pending.
func (s *Store) CreatePhoto(ctx context.Context, p *models.WorkOrderPhoto) error {
	now := s.clock.Now()
	if p.ID == "" {
		p.ID = uuid.New()
	}
	if p.TakenAt == 0 {
		p.TakenAt = now.UnixMilli()
	}
	p.CreatedAt = now.UnixMilli()
	p.Touch(now)
	return s.InsertPhoto(ctx, p)
}

func (s *Store) InsertPhoto(ctx context.Context, p *models.WorkOrderPhoto) error {
	if err := photos.insert(ctx, s.q, p); err != nil {
		return err
	}
	s.changed(models.TablePhotos)
	return nil
}

func (s *Store) UpdatePhoto(ctx context.Context, p *models.WorkOrderPhoto) error {
	if err := photos.update(ctx, s.q, p); err != nil {
		return err
	}
	s.changed(models.TablePhotos)
	return nil
}

func (s *Store) GetPhoto(ctx context.Context, id string) (*models.WorkOrderPhoto, error) {
	return photos.get(ctx, s.q, "id = ?", id)
}

func (s *Store) GetPhotoByServerID(ctx context.Context, serverID string) (*models.WorkOrderPhoto, error) {
	return photos.get(ctx, s.q, "server_id = ?", serverID)
}

func (s *Store) PendingPhotos(ctx context.Context) ([]*models.WorkOrderPhoto, error) {
	return photos.list(ctx, s.q, "local_sync_status = ?", "taken_at ASC", models.SyncPending)
}

// PhotosForWorkOrder lists a work order's photos by capture time.
func (s *Store) PhotosForWorkOrder(ctx context.Context, workOrderID string) ([]*models.WorkOrderPhoto, error) {
	return photos.list(ctx, s.q, "work_order_id = ?", "taken_at ASC", workOrderID)
}

// PhotosPendingUpload lists photos with a local file but no remote URL.
func (s *Store) PhotosPendingUpload(ctx context.Context) ([]*models.WorkOrderPhoto, error) {
	return photos.list(ctx, s.q, "local_uri IS NOT NULL AND local_uri != '' AND (remote_url IS NULL OR remote_url = '')", "taken_at ASC")
}

// PhotosMissingLocally lists photos with a remote URL but no local file.
func (s *Store) PhotosMissingLocally(ctx context.Context) ([]*models.WorkOrderPhoto, error) {
	return photos.list(ctx, s.q, "remote_url IS NOT NULL AND remote_url != '' AND (local_uri IS NULL OR local_uri = '')", "taken_at ASC")
}
