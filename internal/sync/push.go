package sync

import (
	"context"
	"sort"

	"github.com/kimhsiao/fieldsync/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/remote"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

// loadRecord reads one record of any synced table.
func loadRecord(ctx context.Context, store db.SyncRepository, table, id string) (models.Syncable, error) {
	switch table {
	case models.TableWorkOrders:
		wo, err := store.GetWorkOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return wo, nil
	case models.TableAssets:
		a, err := store.GetAsset(ctx, id)
		if err != nil {
			return nil, err
		}
		return a, nil
	case models.TableMeterReadings:
		m, err := store.GetMeterReading(ctx, id)
		if err != nil {
			return nil, err
		}
		return m, nil
	case models.TablePhotos:
		p, err := store.GetPhoto(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, apperrors.New(apperrors.ErrInvalid, "unknown table "+table)
}

func saveRecord(ctx context.Context, store db.SyncRepository, rec models.Syncable) error {
	switch r := rec.(type) {
	case *models.WorkOrder:
		return store.UpdateWorkOrder(ctx, r)
	case *models.Asset:
		return store.UpdateAsset(ctx, r)
	case *models.MeterReading:
		return store.UpdateMeterReading(ctx, r)
	case *models.WorkOrderPhoto:
		return store.UpdatePhoto(ctx, r)
	}
	return apperrors.New(apperrors.ErrInvalid, "unknown record type "+rec.TableName())
}

func (e *Engine) upsert(ctx context.Context, rec models.Syncable) (remote.UpsertResult, error) {
	switch r := rec.(type) {
	case *models.WorkOrder:
		return e.remote.UpsertWorkOrder(ctx, workOrderRow(r))
	case *models.Asset:
		return e.remote.UpsertAsset(ctx, assetRow(r))
	case *models.MeterReading:
		return e.remote.UpsertMeterReading(ctx, meterReadingRow(r))
	case *models.WorkOrderPhoto:
		return e.remote.UpsertPhoto(ctx, photoRow(r))
	}
	return remote.UpsertResult{}, apperrors.New(apperrors.ErrInvalid, "unknown record type "+rec.TableName())
}

func priorityFor(rec models.Syncable) int {
	if wo, ok := rec.(*models.WorkOrder); ok {
		return queue.CalculateWorkOrderPriority(wo.Priority, wo.Status)
	}
	return queue.DefaultPriority(rec.TableName())
}

func recordFields(rec models.Syncable) map[string]interface{} {
	return map[string]interface{}{
		"table":     rec.TableName(),
		"record_id": uuid.Short(rec.Sync().ID),
	}
}

// pendingRecords lists everything awaiting a push in push order: assets, work
// orders by urgency, meter readings, then photos.
func (e *Engine) pendingRecords(ctx context.Context) ([]models.Syncable, error) {
	assets, err := e.store.PendingAssets(ctx)
	if err != nil {
		return nil, err
	}
	workOrders, err := e.store.PendingWorkOrders(ctx)
	if err != nil {
		return nil, err
	}
	readings, err := e.store.PendingMeterReadings(ctx)
	if err != nil {
		return nil, err
	}
	photos, err := e.store.PendingPhotos(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(workOrders, func(i, j int) bool {
		return priorityFor(workOrders[i]) < priorityFor(workOrders[j])
	})

	records := make([]models.Syncable, 0, len(assets)+len(workOrders)+len(readings)+len(photos))
	for _, a := range assets {
		records = append(records, a)
	}
	for _, wo := range workOrders {
		records = append(records, wo)
	}
	for _, m := range readings {
		records = append(records, m)
	}
	for _, p := range photos {
		records = append(records, p)
	}
	return records, nil
}

// push upserts every pending record. A failing record is queued or abandoned
// and the batch moves on.
func (e *Engine) push(ctx context.Context, result *SyncResult) error {
	records, err := e.pendingRecords(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		skip, err := e.skipPush(ctx, rec)
		if err != nil {
			return err
		}
		if skip {
			result.Skipped++
			continue
		}

		remoteErr, err := e.pushRecord(ctx, rec)
		if err != nil {
			return err
		}
		if remoteErr == nil {
			result.Pushed++
			continue
		}

		abandoned, err := e.recordPushFailure(rec, remoteErr)
		if err != nil {
			return err
		}
		if abandoned {
			result.Abandoned++
		} else {
			result.Enqueued++
		}
	}
	return nil
}

// skipPush reports whether rec must wait: photos wait for their work order,
// records with a live retry item are left to the queue, and records blocked
// by an unrecoverable error wait until they are edited again.
func (e *Engine) skipPush(ctx context.Context, rec models.Syncable) (bool, error) {
	if p, ok := rec.(*models.WorkOrderPhoto); ok {
		parent, err := e.store.GetWorkOrder(ctx, p.WorkOrderID)
		if err != nil && !db.IsNotFound(err) {
			return false, err
		}
		if parent == nil || !parent.HasServerID() {
			return true, nil
		}
	}

	r := rec.Sync()
	active, err := e.queue.FindActive(r.ID, rec.TableName(), models.OpPush)
	if err != nil {
		return false, err
	}
	if active != nil {
		return true, nil
	}

	latest, err := e.queue.FindLatest(r.ID, rec.TableName(), models.OpPush)
	if err != nil || latest == nil {
		return false, err
	}
	if latest.State != models.QueueAbandoned || !apperrors.Category(latest.ErrorCategory).Blocking() {
		return false, nil
	}
	blockedAt := latest.CreatedAt
	if latest.LastAttemptAt != nil {
		blockedAt = *latest.LastAttemptAt
	}
	return r.LocalUpdatedAt <= blockedAt, nil
}

// pushRecord upserts rec and stamps the confirmation locally. remoteErr is
// the upsert failure, if any; err is a local store failure.
func (e *Engine) pushRecord(ctx context.Context, rec models.Syncable) (remoteErr, err error) {
	res, remoteErr := e.upsert(ctx, rec)
	if remoteErr != nil {
		return remoteErr, nil
	}

	pushed := rec.Sync()
	serverID := res.ID
	if serverID == "" {
		serverID = remoteID(pushed)
	}
	serverAt := res.UpdatedAt.UnixMilli()

	err = e.store.WithTx(ctx, func(tx db.SyncRepository) error {
		current, err := loadRecord(ctx, tx, rec.TableName(), pushed.ID)
		if err != nil {
			return err
		}
		cur := current.Sync()
		if cur.LocalUpdatedAt == pushed.LocalUpdatedAt {
			cur.MarkSynced(serverID, serverAt)
		} else {
			// Edited while the upsert was in flight; the newer edit still needs a push.
			cur.ServerID = &serverID
			cur.ServerUpdatedAt = &serverAt
		}
		return saveRecord(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}

	logging.Debug("Record pushed", recordFields(rec))
	return nil, e.queue.RemoveForRecord(pushed.ID, rec.TableName())
}

// recordPushFailure queues a failed push. Errors that retrying cannot fix are
// abandoned straight away so they surface as blocking issues.
func (e *Engine) recordPushFailure(rec models.Syncable, remoteErr error) (abandoned bool, err error) {
	classified := apperrors.Classify(remoteErr)
	id, err := e.queue.Enqueue(rec.Sync().ID, rec.TableName(), models.OpPush, priorityFor(rec), classified.MaxRetries)
	if err != nil {
		return false, err
	}

	fields := recordFields(rec)
	fields["category"] = string(classified.Category)
	if classified.ShouldRetry {
		logging.Warn("Push failed, queued for retry", fields)
		return false, e.queue.SetLastError(id, classified)
	}
	logging.ErrorWithCode("Push failed permanently", string(apperrors.ErrSyncFailed), remoteErr, fields)
	return true, e.queue.MarkFailed(id, classified)
}

// drainQueue retries every queue item whose backoff has elapsed.
func (e *Engine) drainQueue(ctx context.Context, result *SyncResult) error {
	items, err := e.queue.RetryableItems()
	if err != nil {
		return err
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := e.queue.MarkInProgress(item.ID); err != nil {
			return err
		}

		// The pull phase refetches every table, which covers any queued pull.
		if item.Operation == models.OpPull {
			if err := e.queue.MarkCompleted(item.ID); err != nil {
				return err
			}
			result.RetriedOK++
			continue
		}

		rec, err := loadRecord(ctx, e.store, item.TableName, item.RecordID)
		if db.IsNotFound(err) || apperrors.Is(err, apperrors.ErrInvalid) {
			if err := e.queue.MarkAbandoned(item.ID, "record no longer exists locally"); err != nil {
				return err
			}
			result.RetriedFailed++
			continue
		}
		if err != nil {
			return err
		}

		switch rec.Sync().LocalSyncStatus {
		case models.SyncSynced:
			// Already pushed by an earlier cycle.
			if err := e.queue.MarkCompleted(item.ID); err != nil {
				return err
			}
			result.RetriedOK++
			continue
		case models.SyncConflict:
			if err := e.queue.MarkAbandoned(item.ID, "record is awaiting conflict review"); err != nil {
				return err
			}
			result.RetriedFailed++
			continue
		}

		remoteErr, err := e.pushRecord(ctx, rec)
		if err != nil {
			return err
		}
		if remoteErr == nil {
			if err := e.queue.MarkCompleted(item.ID); err != nil {
				return err
			}
			result.RetriedOK++
			continue
		}

		if err := e.queue.MarkFailed(item.ID, apperrors.Classify(remoteErr)); err != nil {
			return err
		}
		result.RetriedFailed++
	}
	return nil
}
