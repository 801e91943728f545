package db

import (
	"context"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var workOrders = entity[models.WorkOrder]{
	table: models.TableWorkOrders,
	columns: []string{
		"site_id", "asset_id", "title", "description", "priority", "status",
		"assigned_to", "completed_by", "due_date", "started_at", "completed_at",
		"completion_notes", "failure_type", "time_spent_minutes",
		"signature_image_url", "signature_timestamp", "signature_hash",
		"voice_note_url", "voice_note_confidence", "needs_enrichment", "is_quick_log", "created_at",
	},
	dest: func(w *models.WorkOrder) ([]interface{}, func()) {
		var sigURL, sigHash *string
		var sigTS *int64
		dest := []interface{}{
			&w.SiteID, &w.AssetID, &w.Title, &w.Description, &w.Priority, &w.Status,
			&w.AssignedTo, &w.CompletedBy, &w.DueDate, &w.StartedAt, &w.CompletedAt,
			&w.CompletionNotes, &w.FailureType, &w.TimeSpentMinutes,
			&sigURL, &sigTS, &sigHash,
			&w.VoiceNoteURL, &w.VoiceNoteConfidence, &w.NeedsEnrichment, &w.IsQuickLog, &w.CreatedAt,
		}
		return dest, func() {
			if sigURL == nil {
				return
			}
			w.Signature = &models.Signature{ImageURL: *sigURL}
			if sigTS != nil {
				w.Signature.Timestamp = *sigTS
			}
			if sigHash != nil {
				w.Signature.Hash = *sigHash
			}
		}
	},
	values: func(w *models.WorkOrder) []interface{} {
		var sigURL, sigHash *string
		var sigTS *int64
		if w.Signature != nil {
			sigURL, sigTS, sigHash = &w.Signature.ImageURL, &w.Signature.Timestamp, &w.Signature.Hash
		}
		return []interface{}{
			w.SiteID, w.AssetID, w.Title, w.Description, w.Priority, w.Status,
			w.AssignedTo, w.CompletedBy, w.DueDate, w.StartedAt, w.CompletedAt,
			w.CompletionNotes, w.FailureType, w.TimeSpentMinutes,
			sigURL, sigTS, sigHash,
			w.VoiceNoteURL, w.VoiceNoteConfidence, w.NeedsEnrichment, w.IsQuickLog, w.CreatedAt,
		}
	},
	sync: func(w *models.WorkOrder) *models.SyncableRecord { return &w.SyncableRecord },
}

// CreateWorkOrder records a new locally created work order as pending.
func (s *Store) CreateWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	now := s.clock.Now()
	if wo.ID == "" {
		wo.ID = uuid.New()
	}
	if wo.Priority == "" {
		wo.Priority = models.PriorityMedium
	}
	if wo.Status == "" {
		wo.Status = models.StatusOpen
	}
	wo.CreatedAt = now.UnixMilli()
	wo.Touch(now)
	return s.InsertWorkOrder(ctx, wo)
}

// CreateQuickLog records an abbreviated field entry that needs enrichment later.
func (s *Store) CreateQuickLog(ctx context.Context, siteID, assetID, title, user string) (*models.WorkOrder, error) {
	now := s.clock.Now().UnixMilli()
	wo := &models.WorkOrder{
		SiteID:          siteID,
		Title:           title,
		Priority:        models.PriorityMedium,
		Status:          models.StatusCompleted,
		CompletedBy:     models.String(user),
		CompletedAt:     models.Int64(now),
		NeedsEnrichment: true,
		IsQuickLog:      true,
	}
	if assetID != "" {
		wo.AssetID = models.String(assetID)
	}
	if err := s.CreateWorkOrder(ctx, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// InsertWorkOrder writes a work order as given, without touching sync fields.
func (s *Store) InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	if err := workOrders.insert(ctx, s.q, wo); err != nil {
		return err
	}
	s.changed(models.TableWorkOrders)
	return nil
}

// UpdateWorkOrder overwrites a work order as given, without touching sync fields.
func (s *Store) UpdateWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	if err := workOrders.update(ctx, s.q, wo); err != nil {
		return err
	}
	s.changed(models.TableWorkOrders)
	return nil
}

// EditWorkOrder applies a local mutation and marks the work order pending.
func (s *Store) EditWorkOrder(ctx context.Context, id string, fn func(*models.WorkOrder)) (*models.WorkOrder, error) {
	wo, err := s.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(wo)
	wo.Touch(s.clock.Now())
	if err := s.UpdateWorkOrder(ctx, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// GetWorkOrder retrieves a work order by local ID.
func (s *Store) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	return workOrders.get(ctx, s.q, "id = ?", id)
}

// GetWorkOrderByServerID retrieves a work order by remote ID.
func (s *Store) GetWorkOrderByServerID(ctx context.Context, serverID string) (*models.WorkOrder, error) {
	return workOrders.get(ctx, s.q, "server_id = ?", serverID)
}

// PendingWorkOrders lists work orders with unpushed changes.
func (s *Store) PendingWorkOrders(ctx context.Context) ([]*models.WorkOrder, error) {
	return workOrders.list(ctx, s.q, "local_sync_status = ?", "local_updated_at ASC", models.SyncPending)
}

// ListWorkOrders lists all work orders for a site, newest first.
func (s *Store) ListWorkOrders(ctx context.Context, siteID string) ([]*models.WorkOrder, error) {
	return workOrders.list(ctx, s.q, "site_id = ?", "created_at DESC", siteID)
}

// CountUnenrichedQuickLogs counts quick-log work orders still flagged for enrichment.
func (s *Store) CountUnenrichedQuickLogs(ctx context.Context) (int, error) {
	return workOrders.count(ctx, s.q, "is_quick_log = 1 AND needs_enrichment = 1")
}
