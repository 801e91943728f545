package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/models"
)

func TestFake_stampsIncrease(t *testing.T) {
	f := NewFake("site-1", clock.NewMock())
	ctx := context.Background()

	first, _ := f.UpsertWorkOrder(ctx, WorkOrderRow{ID: "wo-1", SiteID: "site-1"})
	second, _ := f.UpsertWorkOrder(ctx, WorkOrderRow{ID: "wo-1", SiteID: "site-1", Title: "edited"})
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("second stamp %v should be after %v", second.UpdatedAt, first.UpdatedAt)
	}

	row, _ := f.WorkOrder("wo-1")
	if row.CreatedAt == nil || !row.CreatedAt.Equal(first.UpdatedAt) {
		t.Errorf("CreatedAt = %v, want first write time", row.CreatedAt)
	}
}

func TestFake_fetchSince(t *testing.T) {
	c := clock.NewMock()
	f := NewFake("site-1", c)
	ctx := context.Background()

	f.UpsertAsset(ctx, AssetRow{ID: "a-1", SiteID: "site-1"})
	f.UpsertAsset(ctx, AssetRow{ID: "a-other", SiteID: "site-2"})
	mid := c.Now()
	c.Advance(time.Minute)
	f.UpsertAsset(ctx, AssetRow{ID: "a-2", SiteID: "site-1"})
	f.UpsertMeterReading(ctx, MeterReadingRow{ID: "mr-1", AssetID: "a-1"})
	f.UpsertMeterReading(ctx, MeterReadingRow{ID: "mr-2", AssetID: "a-other"})

	all, _ := f.FetchAssets(ctx, nil)
	if len(all) != 2 {
		t.Errorf("FetchAssets(nil) len = %d, want 2", len(all))
	}

	newer, _ := f.FetchAssets(ctx, &mid)
	if len(newer) != 1 || newer[0].ID != "a-2" {
		t.Errorf("FetchAssets(mid) = %v, want a-2 only", newer)
	}

	readings, _ := f.FetchMeterReadings(ctx, nil)
	if len(readings) != 1 || readings[0].ID != "mr-1" {
		t.Errorf("FetchMeterReadings() = %v, want mr-1 only", readings)
	}
}

func TestFake_failures(t *testing.T) {
	f := NewFake("site-1", clock.NewMock())
	ctx := context.Background()
	boom := errors.New("connection reset")

	f.FailUpserts(models.TableWorkOrders, boom)
	if _, err := f.UpsertWorkOrder(ctx, WorkOrderRow{ID: "wo-1"}); !errors.Is(err, boom) {
		t.Errorf("first upsert error = %v, want %v", err, boom)
	}
	if _, err := f.UpsertWorkOrder(ctx, WorkOrderRow{ID: "wo-1"}); err != nil {
		t.Errorf("second upsert error = %v, want nil", err)
	}
	if got := f.Upserts(models.TableWorkOrders); got != 1 {
		t.Errorf("Upserts() = %d, want 1", got)
	}

	f.FailFetch(models.TablePhotos, boom)
	if _, err := f.FetchPhotos(ctx, nil); err == nil {
		t.Error("FetchPhotos() should fail")
	}
	f.FailFetch(models.TablePhotos, nil)
	if _, err := f.FetchPhotos(ctx, nil); err != nil {
		t.Errorf("FetchPhotos() error = %v after clearing", err)
	}
}
