package remote

import (
	"context"
	"net/url"
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// Source is the row contract the sync engine pulls from and pushes to.
// Fetches return rows changed strictly after since, oldest first; a nil since
// returns everything visible to the site.
type Source interface {
	FetchAssets(ctx context.Context, since *time.Time) ([]AssetRow, error)
	FetchWorkOrders(ctx context.Context, since *time.Time) ([]WorkOrderRow, error)
	FetchMeterReadings(ctx context.Context, since *time.Time) ([]MeterReadingRow, error)
	FetchPhotos(ctx context.Context, since *time.Time) ([]PhotoRow, error)

	UpsertAsset(ctx context.Context, row AssetRow) (UpsertResult, error)
	UpsertWorkOrder(ctx context.Context, row WorkOrderRow) (UpsertResult, error)
	UpsertMeterReading(ctx context.Context, row MeterReadingRow) (UpsertResult, error)
	UpsertPhoto(ctx context.Context, row PhotoRow) (UpsertResult, error)
}

// Queries implements Source over a Client, scoped to one site.
type Queries struct {
	client *Client
	siteID string
}

var _ Source = (*Queries)(nil)

// NewQueries creates site-scoped queries.
func NewQueries(client *Client, siteID string) *Queries {
	return &Queries{client: client, siteID: siteID}
}

// sinceQuery builds the common filter. parent names the table the site
// filter goes through for child tables, empty for site-owned tables.
func (q *Queries) sinceQuery(parent string, since *time.Time) url.Values {
	v := url.Values{}
	if parent == "" {
		v.Set("select", "*")
		v.Set("site_id", "eq."+q.siteID)
	} else {
		v.Set("select", "*,"+parent+"!inner(site_id)")
		v.Set(parent+".site_id", "eq."+q.siteID)
	}
	if since != nil {
		v.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}
	v.Set("order", "updated_at.asc")
	return v
}

// FetchAssets returns the site's assets changed since.
func (q *Queries) FetchAssets(ctx context.Context, since *time.Time) ([]AssetRow, error) {
	var rows []AssetRow
	err := q.client.Select(ctx, models.TableAssets, q.sinceQuery("", since), &rows)
	return rows, err
}

// FetchWorkOrders returns the site's work orders changed since.
func (q *Queries) FetchWorkOrders(ctx context.Context, since *time.Time) ([]WorkOrderRow, error) {
	var rows []WorkOrderRow
	err := q.client.Select(ctx, models.TableWorkOrders, q.sinceQuery("", since), &rows)
	return rows, err
}

// FetchMeterReadings returns readings changed since for assets at the site.
func (q *Queries) FetchMeterReadings(ctx context.Context, since *time.Time) ([]MeterReadingRow, error) {
	var rows []MeterReadingRow
	err := q.client.Select(ctx, models.TableMeterReadings, q.sinceQuery(models.TableAssets, since), &rows)
	return rows, err
}

// FetchPhotos returns photo rows changed since for work orders at the site.
func (q *Queries) FetchPhotos(ctx context.Context, since *time.Time) ([]PhotoRow, error) {
	var rows []PhotoRow
	err := q.client.Select(ctx, models.TablePhotos, q.sinceQuery(models.TableWorkOrders, since), &rows)
	return rows, err
}

// UpsertAsset writes an asset row. The server stamps updated_at.
func (q *Queries) UpsertAsset(ctx context.Context, row AssetRow) (UpsertResult, error) {
	row.UpdatedAt = nil
	return q.client.Upsert(ctx, models.TableAssets, row)
}

// UpsertWorkOrder writes a work order row.
func (q *Queries) UpsertWorkOrder(ctx context.Context, row WorkOrderRow) (UpsertResult, error) {
	row.UpdatedAt = nil
	return q.client.Upsert(ctx, models.TableWorkOrders, row)
}

// UpsertMeterReading writes a meter reading row.
func (q *Queries) UpsertMeterReading(ctx context.Context, row MeterReadingRow) (UpsertResult, error) {
	row.UpdatedAt = nil
	return q.client.Upsert(ctx, models.TableMeterReadings, row)
}

// UpsertPhoto writes a photo row.
func (q *Queries) UpsertPhoto(ctx context.Context, row PhotoRow) (UpsertResult, error) {
	row.UpdatedAt = nil
	return q.client.Upsert(ctx, models.TablePhotos, row)
}
