package sync

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/fieldsync/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/remote"
	"github.com/kimhsiao/fieldsync/internal/sync/conflict"
	"github.com/kimhsiao/fieldsync/internal/sync/conflictlog"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

// remoteChanges holds the rows fetched for one pull.
type remoteChanges struct {
	assets     []remote.AssetRow
	workOrders []remote.WorkOrderRow
	readings   []remote.MeterReadingRow
	photos     []remote.PhotoRow
}

func (c remoteChanges) len() int {
	return len(c.assets) + len(c.workOrders) + len(c.readings) + len(c.photos)
}

// fetchChanges queries every table concurrently. The queries are read-only and
// independent; any failure fails the whole pull.
func (e *Engine) fetchChanges(ctx context.Context, since *time.Time) (remoteChanges, error) {
	var c remoteChanges
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		c.assets, err = e.remote.FetchAssets(gctx, since)
		return fetchErr(models.TableAssets, err)
	})
	g.Go(func() (err error) {
		c.workOrders, err = e.remote.FetchWorkOrders(gctx, since)
		return fetchErr(models.TableWorkOrders, err)
	})
	g.Go(func() (err error) {
		c.readings, err = e.remote.FetchMeterReadings(gctx, since)
		return fetchErr(models.TableMeterReadings, err)
	})
	g.Go(func() (err error) {
		c.photos, err = e.remote.FetchPhotos(gctx, since)
		return fetchErr(models.TablePhotos, err)
	})

	return c, g.Wait()
}

func fetchErr(table string, err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrRemoteRequest, "fetch "+table, err)
}

// pull fetches remote changes since the last sync and applies them in one
// transaction, parents before children. Conflict log entries are written only
// after the transaction commits.
func (e *Engine) pull(ctx context.Context, syncTime time.Time, result *SyncResult) error {
	since, err := e.meta.lastSyncAt()
	if err != nil {
		return err
	}

	changes, err := e.fetchChanges(ctx, since)
	if err != nil {
		return err
	}
	if changes.len() == 0 {
		return nil
	}

	var entries []conflictlog.Entry
	err = e.store.WithTx(ctx, func(tx db.SyncRepository) error {
		a := &applier{ctx: ctx, tx: tx, syncTime: syncTime, result: result}
		for _, row := range changes.assets {
			if err := a.asset(row); err != nil {
				return err
			}
		}
		for _, row := range changes.workOrders {
			if err := a.workOrder(row); err != nil {
				return err
			}
		}
		for _, row := range changes.readings {
			if err := a.meterReading(row); err != nil {
				return err
			}
		}
		for _, row := range changes.photos {
			if err := a.photo(row); err != nil {
				return err
			}
		}
		entries = a.entries
		return nil
	})
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if _, err := e.conflicts.Append(entry); err != nil {
			return err
		}
	}
	return nil
}

// applier writes fetched rows inside the pull transaction.
type applier struct {
	ctx      context.Context
	tx       db.SyncRepository
	syncTime time.Time
	result   *SyncResult
	entries  []conflictlog.Entry
}

// find looks a record up by server id, falling back to the local id, which
// equals the server id for records created on this device. Missing is nil.
func find[T any](ctx context.Context, id string, byServerID, byID func(context.Context, string) (*T, error)) (*T, error) {
	v, err := byServerID(ctx, id)
	if db.IsNotFound(err) {
		v, err = byID(ctx, id)
	}
	if db.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

// reopen lets a record held for review be resolved again against a newer
// server version, so remote changes made during review are not skipped.
// Nothing is written unless the resolver finds a conflict; an escalation
// holds the record again and logs a fresh entry.
func reopen(r *models.SyncableRecord) {
	r.LocalSyncStatus = models.SyncPending
}

// settle finishes a conflicting record. local already carries the merged
// fields unless the conflict escalated, in which case it is only flagged.
func (a *applier) settle(local models.Syncable, serverID string, serverAt *int64,
	resolutions []models.ConflictResolution, escalations []string, matchesRemote bool) {

	r := local.Sync()
	a.result.Conflicts++

	entry := conflictlog.Entry{
		TableName:      local.TableName(),
		LocalRecordID:  r.ID,
		ServerRecordID: serverID,
		Resolutions:    resolutions,
		Escalations:    escalations,
		AutoResolved:   len(escalations) == 0,
	}
	a.entries = append(a.entries, entry)

	if len(escalations) > 0 {
		r.LocalSyncStatus = models.SyncConflict
		a.result.Escalated++
		return
	}

	r.ServerID = &serverID
	r.ServerUpdatedAt = serverAt
	if matchesRemote {
		r.LocalSyncStatus = models.SyncSynced
		return
	}
	// The merge holds local changes the server has not seen yet.
	r.LocalSyncStatus = models.SyncPending
}

func (a *applier) asset(row remote.AssetRow) error {
	incoming := assetFromRow(row)
	local, err := find(a.ctx, row.ID, a.tx.GetAssetByServerID, a.tx.GetAsset)
	if err != nil {
		return err
	}

	switch {
	case local == nil:
		a.result.Pulled++
		return a.tx.InsertAsset(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncSynced:
		incoming.ID = local.ID
		if incoming.CreatedAt == 0 {
			incoming.CreatedAt = local.CreatedAt
		}
		a.result.Pulled++
		return a.tx.UpdateAsset(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncConflict:
		reopen(&local.SyncableRecord)
	}

	res := conflict.ResolveAsset(local, incoming)
	if !res.HasConflict {
		return nil
	}
	if !res.Escalated() {
		res.Merged.Apply(local)
	}
	a.settle(local, row.ID, incoming.ServerUpdatedAt, res.Resolutions, res.Escalations, sameAsset(local, incoming))
	return a.tx.UpdateAsset(a.ctx, local)
}

func (a *applier) workOrder(row remote.WorkOrderRow) error {
	incoming := workOrderFromRow(row)
	local, err := find(a.ctx, row.ID, a.tx.GetWorkOrderByServerID, a.tx.GetWorkOrder)
	if err != nil {
		return err
	}

	switch {
	case local == nil:
		a.result.Pulled++
		return a.tx.InsertWorkOrder(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncSynced:
		incoming.ID = local.ID
		if incoming.CreatedAt == 0 {
			incoming.CreatedAt = local.CreatedAt
		}
		a.result.Pulled++
		return a.tx.UpdateWorkOrder(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncConflict:
		reopen(&local.SyncableRecord)
	}

	res := conflict.ResolveWorkOrder(local, incoming, a.syncTime)
	if !res.HasConflict {
		return nil
	}
	if !res.Escalated() {
		res.Merged.Apply(local)
	}
	a.settle(local, row.ID, incoming.ServerUpdatedAt, res.Resolutions, res.Escalations, sameWorkOrder(local, incoming))
	return a.tx.UpdateWorkOrder(a.ctx, local)
}

func (a *applier) meterReading(row remote.MeterReadingRow) error {
	incoming := meterReadingFromRow(row)
	local, err := find(a.ctx, row.ID, a.tx.GetMeterReadingByServerID, a.tx.GetMeterReading)
	if err != nil {
		return err
	}

	switch {
	case local == nil:
		a.result.Pulled++
		return a.tx.InsertMeterReading(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncSynced:
		incoming.ID = local.ID
		if incoming.CreatedAt == 0 {
			incoming.CreatedAt = local.CreatedAt
		}
		a.result.Pulled++
		return a.tx.UpdateMeterReading(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncConflict:
		reopen(&local.SyncableRecord)
	}

	res := conflict.ResolveMeterReading(local, incoming)
	if !res.HasConflict {
		return nil
	}

	if res.HasEscalation(conflict.EscalationSameTimeDifferentValues) {
		// Two readings that cannot be ordered are both kept. The remote one
		// takes over the shared id; the local one moves to a fresh id and is
		// pushed as a new reading.
		oldID := local.ID
		local.ID = uuid.New()
		if err := a.tx.RekeyMeterReading(a.ctx, oldID, local.ID); err != nil {
			return err
		}
		a.result.Conflicts++
		a.result.Escalated++
		a.result.Pulled++
		a.entries = append(a.entries, conflictlog.Entry{
			TableName:      models.TableMeterReadings,
			LocalRecordID:  local.ID,
			ServerRecordID: row.ID,
			Resolutions:    res.Resolutions,
			Escalations:    res.Escalations,
			AutoResolved:   false,
		})
		logging.Warn("Meter readings kept side by side", map[string]interface{}{
			"local_id":  uuid.Short(local.ID),
			"server_id": uuid.Short(row.ID),
		})
		return a.tx.InsertMeterReading(a.ctx, incoming)
	}

	if !res.Escalated() {
		res.Merged.Apply(local)
	}
	a.settle(local, row.ID, incoming.ServerUpdatedAt, res.Resolutions, res.Escalations, sameMeterReading(local, incoming))
	return a.tx.UpdateMeterReading(a.ctx, local)
}

func (a *applier) photo(row remote.PhotoRow) error {
	incoming := photoFromRow(row)
	local, err := find(a.ctx, row.ID, a.tx.GetPhotoByServerID, a.tx.GetPhoto)
	if err != nil {
		return err
	}

	switch {
	case local == nil:
		a.result.Pulled++
		return a.tx.InsertPhoto(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncSynced:
		incoming.ID = local.ID
		if incoming.CreatedAt == 0 {
			incoming.CreatedAt = local.CreatedAt
		}
		// A cached file is only valid for the URL it came from.
		if models.Deref(local.RemoteURL) == models.Deref(incoming.RemoteURL) {
			incoming.LocalURI = local.LocalURI
		}
		a.result.Pulled++
		return a.tx.UpdatePhoto(a.ctx, incoming)
	case local.LocalSyncStatus == models.SyncConflict:
		reopen(&local.SyncableRecord)
	}

	if !conflict.HasConflict(&local.SyncableRecord, &incoming.SyncableRecord) {
		return nil
	}

	// Pair the two sides explicitly; the local copy may not know its server id yet.
	paired := *local
	paired.ServerID = &row.ID
	merge := conflict.MergePhotos([]models.WorkOrderPhoto{paired}, []models.WorkOrderPhoto{*incoming})
	var resolutions []models.ConflictResolution
	for _, mp := range merge.Photos {
		if mp.Source == conflict.SourceRemote {
			continue
		}
		local.Caption = mp.Photo.Caption
		local.RemoteURL = mp.Photo.RemoteURL
	}
	for _, c := range merge.MergedCaptions {
		resolutions = append(resolutions, models.ConflictResolution{
			FieldName:     string(conflict.FieldCaption),
			LocalValue:    c.LocalCaption,
			RemoteValue:   c.RemoteCaption,
			ResolvedValue: models.Deref(local.Caption),
			Rule:          string(conflict.RuleAppendBoth),
		})
	}
	a.settle(local, row.ID, incoming.ServerUpdatedAt, resolutions, nil, samePhoto(local, incoming))
	return a.tx.UpdatePhoto(a.ctx, local)
}
