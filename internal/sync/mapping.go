package sync

import (
	"reflect"
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/remote"
)

// remoteID is the id a record is written under remotely. A record that never
// synced pushes its local id, which the server adopts.
func remoteID(r *models.SyncableRecord) string {
	if r.HasServerID() {
		return *r.ServerID
	}
	return r.ID
}

func createdAt(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func millisOr(t *time.Time, fallback int64) int64 {
	if t == nil {
		return fallback
	}
	return t.UnixMilli()
}

// syncedFrom builds the sync fields of a record freshly read from the server.
func syncedFrom(id string, updatedAt *time.Time) models.SyncableRecord {
	r := models.SyncableRecord{
		ID:              id,
		ServerID:        models.String(id),
		LocalSyncStatus: models.SyncSynced,
		ServerUpdatedAt: models.Millis(updatedAt),
	}
	if r.ServerUpdatedAt != nil {
		r.LocalUpdatedAt = *r.ServerUpdatedAt
	}
	return r
}

// =====================================================
// Work orders
// =====================================================

func workOrderRow(wo *models.WorkOrder) remote.WorkOrderRow {
	row := remote.WorkOrderRow{
		ID:                  remoteID(&wo.SyncableRecord),
		SiteID:              wo.SiteID,
		AssetID:             wo.AssetID,
		Title:               wo.Title,
		Description:         wo.Description,
		Priority:            wo.Priority,
		Status:              wo.Status,
		AssignedTo:          wo.AssignedTo,
		CompletedBy:         wo.CompletedBy,
		DueDate:             models.Time(wo.DueDate),
		StartedAt:           models.Time(wo.StartedAt),
		CompletedAt:         models.Time(wo.CompletedAt),
		CompletionNotes:     wo.CompletionNotes,
		FailureType:         wo.FailureType,
		TimeSpentMinutes:    wo.TimeSpentMinutes,
		VoiceNoteURL:        wo.VoiceNoteURL,
		VoiceNoteConfidence: wo.VoiceNoteConfidence,
		NeedsEnrichment:     wo.NeedsEnrichment,
		IsQuickLog:          wo.IsQuickLog,
		CreatedAt:           createdAt(wo.CreatedAt),
	}
	if sig := wo.Signature; sig != nil {
		row.SignatureImageURL = models.String(sig.ImageURL)
		row.SignatureTimestamp = models.Time(models.Int64(sig.Timestamp))
		row.SignatureHash = models.String(sig.Hash)
	}
	return row
}

func workOrderFromRow(row remote.WorkOrderRow) *models.WorkOrder {
	wo := &models.WorkOrder{
		SyncableRecord:      syncedFrom(row.ID, row.UpdatedAt),
		SiteID:              row.SiteID,
		AssetID:             row.AssetID,
		Title:               row.Title,
		Description:         row.Description,
		Priority:            row.Priority,
		Status:              row.Status,
		AssignedTo:          row.AssignedTo,
		CompletedBy:         row.CompletedBy,
		DueDate:             models.Millis(row.DueDate),
		StartedAt:           models.Millis(row.StartedAt),
		CompletedAt:         models.Millis(row.CompletedAt),
		CompletionNotes:     row.CompletionNotes,
		FailureType:         row.FailureType,
		TimeSpentMinutes:    row.TimeSpentMinutes,
		VoiceNoteURL:        row.VoiceNoteURL,
		VoiceNoteConfidence: row.VoiceNoteConfidence,
		NeedsEnrichment:     row.NeedsEnrichment,
		IsQuickLog:          row.IsQuickLog,
		CreatedAt:           millisOr(row.CreatedAt, 0),
	}
	if row.SignatureImageURL != nil {
		wo.Signature = &models.Signature{
			ImageURL:  *row.SignatureImageURL,
			Timestamp: millisOr(row.SignatureTimestamp, 0),
			Hash:      models.Deref(row.SignatureHash),
		}
	}
	return wo
}

// =====================================================
// Assets
// =====================================================

func assetRow(a *models.Asset) remote.AssetRow {
	return remote.AssetRow{
		ID:                  remoteID(&a.SyncableRecord),
		SiteID:              a.SiteID,
		AssetNumber:         a.AssetNumber,
		Name:                a.Name,
		Description:         a.Description,
		Category:            a.Category,
		Status:              a.Status,
		Location:            a.Location,
		MeterType:           a.MeterType,
		MeterUnit:           a.MeterUnit,
		MeterCurrentReading: a.MeterCurrentReading,
		CreatedAt:           createdAt(a.CreatedAt),
	}
}

func assetFromRow(row remote.AssetRow) *models.Asset {
	return &models.Asset{
		SyncableRecord:      syncedFrom(row.ID, row.UpdatedAt),
		SiteID:              row.SiteID,
		AssetNumber:         row.AssetNumber,
		Name:                row.Name,
		Description:         row.Description,
		Category:            row.Category,
		Status:              row.Status,
		Location:            row.Location,
		MeterType:           row.MeterType,
		MeterUnit:           row.MeterUnit,
		MeterCurrentReading: row.MeterCurrentReading,
		CreatedAt:           millisOr(row.CreatedAt, 0),
	}
}

// =====================================================
// Meter readings
// =====================================================

func meterReadingRow(m *models.MeterReading) remote.MeterReadingRow {
	return remote.MeterReadingRow{
		ID:           remoteID(&m.SyncableRecord),
		AssetID:      m.AssetID,
		ReadingValue: m.ReadingValue,
		ReadingDate:  time.UnixMilli(m.ReadingDate).UTC(),
		RecordedBy:   m.RecordedBy,
		Notes:        m.Notes,
		CreatedAt:    createdAt(m.CreatedAt),
	}
}

func meterReadingFromRow(row remote.MeterReadingRow) *models.MeterReading {
	return &models.MeterReading{
		SyncableRecord: syncedFrom(row.ID, row.UpdatedAt),
		AssetID:        row.AssetID,
		ReadingValue:   row.ReadingValue,
		ReadingDate:    row.ReadingDate.UnixMilli(),
		RecordedBy:     row.RecordedBy,
		Notes:          row.Notes,
		CreatedAt:      millisOr(row.CreatedAt, 0),
	}
}

// =====================================================
// Photos
// =====================================================

func photoRow(p *models.WorkOrderPhoto) remote.PhotoRow {
	return remote.PhotoRow{
		ID:          remoteID(&p.SyncableRecord),
		WorkOrderID: p.WorkOrderID,
		PhotoURL:    p.RemoteURL,
		Caption:     p.Caption,
		TakenAt:     time.UnixMilli(p.TakenAt).UTC(),
		CreatedAt:   createdAt(p.CreatedAt),
	}
}

func photoFromRow(row remote.PhotoRow) *models.WorkOrderPhoto {
	return &models.WorkOrderPhoto{
		SyncableRecord: syncedFrom(row.ID, row.UpdatedAt),
		WorkOrderID:    row.WorkOrderID,
		RemoteURL:      row.PhotoURL,
		Caption:        row.Caption,
		TakenAt:        row.TakenAt.UnixMilli(),
		CreatedAt:      millisOr(row.CreatedAt, 0),
	}
}

// =====================================================
// Content comparison
// =====================================================

// sameContent reports whether a and b agree on every domain field. Sync
// bookkeeping, creation time and anything clear zeroes are ignored.
func sameContent[T any](a, b *T, sync func(*T) *models.SyncableRecord, clear func(*T)) bool {
	x, y := *a, *b
	*sync(&x) = models.SyncableRecord{}
	*sync(&y) = models.SyncableRecord{}
	clear(&x)
	clear(&y)
	return reflect.DeepEqual(x, y)
}

func sameWorkOrder(a, b *models.WorkOrder) bool {
	return sameContent(a, b,
		func(w *models.WorkOrder) *models.SyncableRecord { return &w.SyncableRecord },
		func(w *models.WorkOrder) { w.CreatedAt = 0 })
}

func sameAsset(a, b *models.Asset) bool {
	return sameContent(a, b,
		func(x *models.Asset) *models.SyncableRecord { return &x.SyncableRecord },
		func(x *models.Asset) { x.CreatedAt = 0 })
}

func sameMeterReading(a, b *models.MeterReading) bool {
	return sameContent(a, b,
		func(m *models.MeterReading) *models.SyncableRecord { return &m.SyncableRecord },
		func(m *models.MeterReading) { m.CreatedAt = 0 })
}

func samePhoto(a, b *models.WorkOrderPhoto) bool {
	return sameContent(a, b,
		func(p *models.WorkOrderPhoto) *models.SyncableRecord { return &p.SyncableRecord },
		func(p *models.WorkOrderPhoto) {
			p.CreatedAt = 0
			p.LocalURI = nil
		})
}
