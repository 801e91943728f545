package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Fake is an in-memory Source for tests and offline demos. Every write gets a
// strictly increasing millisecond updated_at, and failures can be injected
// per table.
type Fake struct {
	mu     sync.Mutex
	clock  clock.Clock
	siteID string
	last   time.Time

	assets     map[string]AssetRow
	workOrders map[string]WorkOrderRow
	readings   map[string]MeterReadingRow
	photos     map[string]PhotoRow

	upsertErrs map[string][]error
	fetchErrs  map[string]error
	upserts    map[string]int
}

var _ Source = (*Fake)(nil)

// NewFake creates an empty fake scoped to siteID.
func NewFake(siteID string, c clock.Clock) *Fake {
	return &Fake{
		clock:      c,
		siteID:     siteID,
		assets:     make(map[string]AssetRow),
		workOrders: make(map[string]WorkOrderRow),
		readings:   make(map[string]MeterReadingRow),
		photos:     make(map[string]PhotoRow),
		upsertErrs: make(map[string][]error),
		fetchErrs:  make(map[string]error),
		upserts:    make(map[string]int),
	}
}

// FailUpserts makes the next upserts to table fail with errs, in order.
func (f *Fake) FailUpserts(table string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErrs[table] = append(f.upsertErrs[table], errs...)
}

// FailFetch makes fetches from table fail with err until cleared with nil.
func (f *Fake) FailFetch(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fetchErrs, table)
		return
	}
	f.fetchErrs[table] = err
}

// Upserts returns how many successful upserts table has received.
func (f *Fake) Upserts(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[table]
}

// WorkOrder returns the stored work order row.
func (f *Fake) WorkOrder(id string) (WorkOrderRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.workOrders[id]
	return row, ok
}

// Photo returns the stored photo row.
func (f *Fake) Photo(id string) (PhotoRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.photos[id]
	return row, ok
}

// stamp returns the next updated_at. Caller holds mu.
func (f *Fake) stamp() time.Time {
	now := f.clock.Now().UTC().Truncate(time.Millisecond)
	if !now.After(f.last) {
		now = f.last.Add(time.Millisecond)
	}
	f.last = now
	return now
}

// begin pops an injected failure for table. Caller holds mu.
func (f *Fake) begin(table string) error {
	if errs := f.upsertErrs[table]; len(errs) > 0 {
		f.upsertErrs[table] = errs[1:]
		return errs[0]
	}
	f.upserts[table]++
	return nil
}

func created(existing, incoming *time.Time, at time.Time) *time.Time {
	switch {
	case existing != nil:
		return existing
	case incoming != nil:
		return incoming
	default:
		return &at
	}
}

func since[T any](rows map[string]T, keep func(T) bool, updatedAt func(T) *time.Time, after *time.Time) []T {
	var out []T
	for _, row := range rows {
		if !keep(row) {
			continue
		}
		if after != nil && !updatedAt(row).After(*after) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return updatedAt(out[i]).Before(*updatedAt(out[j]))
	})
	return out
}

// FetchAssets implements Source.
func (f *Fake) FetchAssets(_ context.Context, after *time.Time) ([]AssetRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[models.TableAssets]; err != nil {
		return nil, err
	}
	return since(f.assets,
		func(r AssetRow) bool { return r.SiteID == f.siteID },
		func(r AssetRow) *time.Time { return r.UpdatedAt }, after), nil
}

// FetchWorkOrders implements Source.
func (f *Fake) FetchWorkOrders(_ context.Context, after *time.Time) ([]WorkOrderRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[models.TableWorkOrders]; err != nil {
		return nil, err
	}
	return since(f.workOrders,
		func(r WorkOrderRow) bool { return r.SiteID == f.siteID },
		func(r WorkOrderRow) *time.Time { return r.UpdatedAt }, after), nil
}

// FetchMeterReadings implements Source.
func (f *Fake) FetchMeterReadings(_ context.Context, after *time.Time) ([]MeterReadingRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[models.TableMeterReadings]; err != nil {
		return nil, err
	}
	return since(f.readings,
		func(r MeterReadingRow) bool { return f.assets[r.AssetID].SiteID == f.siteID },
		func(r MeterReadingRow) *time.Time { return r.UpdatedAt }, after), nil
}

// FetchPhotos implements Source.
func (f *Fake) FetchPhotos(_ context.Context, after *time.Time) ([]PhotoRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[models.TablePhotos]; err != nil {
		return nil, err
	}
	return since(f.photos,
		func(r PhotoRow) bool { return f.workOrders[r.WorkOrderID].SiteID == f.siteID },
		func(r PhotoRow) *time.Time { return r.UpdatedAt }, after), nil
}

// UpsertAsset implements Source.
func (f *Fake) UpsertAsset(_ context.Context, row AssetRow) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(models.TableAssets); err != nil {
		return UpsertResult{}, err
	}
	at := f.stamp()
	row.CreatedAt = created(f.assets[row.ID].CreatedAt, row.CreatedAt, at)
	row.UpdatedAt = &at
	f.assets[row.ID] = row
	return UpsertResult{ID: row.ID, UpdatedAt: at}, nil
}

// UpsertWorkOrder implements Source.
func (f *Fake) UpsertWorkOrder(_ context.Context, row WorkOrderRow) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(models.TableWorkOrders); err != nil {
		return UpsertResult{}, err
	}
	at := f.stamp()
	row.CreatedAt = created(f.workOrders[row.ID].CreatedAt, row.CreatedAt, at)
	row.UpdatedAt = &at
	f.workOrders[row.ID] = row
	return UpsertResult{ID: row.ID, UpdatedAt: at}, nil
}

// UpsertMeterReading implements Source.
func (f *Fake) UpsertMeterReading(_ context.Context, row MeterReadingRow) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(models.TableMeterReadings); err != nil {
		return UpsertResult{}, err
	}
	at := f.stamp()
	row.CreatedAt = created(f.readings[row.ID].CreatedAt, row.CreatedAt, at)
	row.UpdatedAt = &at
	f.readings[row.ID] = row
	return UpsertResult{ID: row.ID, UpdatedAt: at}, nil
}

// UpsertPhoto implements Source.
func (f *Fake) UpsertPhoto(_ context.Context, row PhotoRow) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(models.TablePhotos); err != nil {
		return UpsertResult{}, err
	}
	at := f.stamp()
	row.CreatedAt = created(f.photos[row.ID].CreatedAt, row.CreatedAt, at)
	row.UpdatedAt = &at
	f.photos[row.ID] = row
	return UpsertResult{ID: row.ID, UpdatedAt: at}, nil
}
