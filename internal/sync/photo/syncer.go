package photo

import (
	"context"
	"fmt"

	"github.com/kimhsiao/fieldsync/internal/blob"
	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/db"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

// Store is the local record access the syncer needs.
type Store interface {
	db.PhotoRepository
	GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error)
}

// Result counts what one photo sync pass did.
type Result struct {
	Uploaded   int `json:"uploaded"`
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Syncer uploads local photo files and downloads missing ones.
type Syncer struct {
	store   Store
	objects blob.ObjectStore
	cache   *blob.LocalCache
	tracker *Tracker
	clock   clock.Clock
}

// NewSyncer creates a Syncer.
func NewSyncer(store Store, objects blob.ObjectStore, cache *blob.LocalCache, tracker *Tracker, c clock.Clock) *Syncer {
	return &Syncer{store: store, objects: objects, cache: cache, tracker: tracker, clock: c}
}

// Tracker returns the upload tracker.
func (s *Syncer) Tracker() *Tracker {
	return s.tracker
}

// ObjectKey is the blob key of a photo file.
func ObjectKey(workOrderID, photoID string) string {
	return fmt.Sprintf("work-orders/%s/%s.jpg", workOrderID, photoID)
}

// Sync retries failed uploads, uploads new photos whose work order has synced
// and downloads photos missing on this device. One photo failing never stops
// the others; only store errors abort the pass.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	var result Result
	attempted := make(map[string]bool)

	ready, err := s.tracker.Ready()
	if err != nil {
		return result, err
	}
	for _, u := range ready {
		attempted[u.PhotoID] = true
		p, err := s.store.GetPhoto(ctx, u.PhotoID)
		if db.IsNotFound(err) {
			if err := s.tracker.Remove(u.PhotoID); err != nil {
				return result, err
			}
			continue
		}
		if err != nil {
			return result, err
		}
		if err := s.upload(ctx, p, &result); err != nil {
			return result, err
		}
	}

	pending, err := s.store.PhotosPendingUpload(ctx)
	if err != nil {
		return result, err
	}
	for _, p := range pending {
		if attempted[p.ID] {
			continue
		}
		if _, tracked, err := s.tracker.Get(p.ID); err != nil {
			return result, err
		} else if tracked {
			// Waiting out its backoff, or abandoned.
			result.Skipped++
			continue
		}
		parent, err := s.store.GetWorkOrder(ctx, p.WorkOrderID)
		if err != nil && !db.IsNotFound(err) {
			return result, err
		}
		if parent == nil || !parent.HasServerID() {
			result.Skipped++
			continue
		}
		if err := s.upload(ctx, p, &result); err != nil {
			return result, err
		}
	}

	missing, err := s.store.PhotosMissingLocally(ctx)
	if err != nil {
		return result, err
	}
	for _, p := range missing {
		if err := s.download(ctx, p, &result); err != nil {
			return result, err
		}
	}

	logging.Info("Photo sync finished", map[string]interface{}{
		"uploaded":   result.Uploaded,
		"downloaded": result.Downloaded,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	})
	return result, nil
}

// upload sends one file. Transfer failures are tracked and counted; the
// returned error is reserved for local store failures.
func (s *Syncer) upload(ctx context.Context, p *models.WorkOrderPhoto, result *Result) error {
	if !p.NeedsUpload() {
		return s.tracker.Remove(p.ID)
	}

	data, err := s.cache.Read(*p.LocalURI)
	if err == nil {
		var remoteURL string
		remoteURL, err = s.objects.Upload(ctx, ObjectKey(p.WorkOrderID, p.ID), data, "image/jpeg")
		if err == nil {
			p.RemoteURL = &remoteURL
			// The row now carries a URL the server has not seen yet.
			p.Touch(s.clock.Now())
			if err := s.store.UpdatePhoto(ctx, p); err != nil {
				return err
			}
			result.Uploaded++
			return s.tracker.Remove(p.ID)
		}
	}

	result.Failed++
	u, trackErr := s.tracker.RecordFailure(p.ID, p.WorkOrderID, err)
	if trackErr != nil {
		return trackErr
	}
	fields := map[string]interface{}{
		"photo_id": uuid.Short(p.ID),
		"attempts": u.Attempts,
	}
	if u.Abandoned {
		logging.Error("Photo upload abandoned", err, fields)
	} else {
		logging.Warn("Photo upload failed", fields)
	}
	return nil
}

func (s *Syncer) download(ctx context.Context, p *models.WorkOrderPhoto, result *Result) error {
	data, err := s.objects.Download(ctx, *p.RemoteURL)
	if err == nil {
		var path string
		path, err = s.cache.Store(data)
		if err == nil {
			// Local paths are device specific; the sync status is left alone.
			p.LocalURI = &path
			if err := s.store.UpdatePhoto(ctx, p); err != nil {
				return err
			}
			result.Downloaded++
			return nil
		}
	}

	result.Failed++
	logging.Warn("Photo download failed", map[string]interface{}{
		"photo_id": uuid.Short(p.ID),
		"error":    err.Error(),
	})
	return nil
}
