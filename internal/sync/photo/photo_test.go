// Package photo provides unit tests for photo file sync.
package photo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/blob"
	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/db"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/backoff"
)

type fixture struct {
	store   *db.Store
	objects *blob.MemoryStore
	cache   *blob.LocalCache
	syncer  *Syncer
	clock   *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	c := clock.NewMock()
	b := backoff.New(backoff.DefaultConfig(), c).WithRand(func() float64 { return 0 })
	f := &fixture{
		store:   db.NewStore(database, c),
		objects: blob.NewMemoryStore("mem://photos"),
		cache:   blob.NewLocalCache(t.TempDir()),
		clock:   c,
	}
	f.syncer = NewSyncer(f.store, f.objects, f.cache, NewTracker(kv.NewMemory(), b, c), c)
	return f
}

// addWorkOrder creates a work order, synced when serverID is set.
func (f *fixture) addWorkOrder(t *testing.T, synced bool) *models.WorkOrder {
	t.Helper()
	wo := &models.WorkOrder{SiteID: "site-1", Title: "Inspect"}
	if err := f.store.CreateWorkOrder(context.Background(), wo); err != nil {
		t.Fatal(err)
	}
	if synced {
		wo.MarkSynced(wo.ID, f.clock.Now().UnixMilli())
		if err := f.store.UpdateWorkOrder(context.Background(), wo); err != nil {
			t.Fatal(err)
		}
	}
	return wo
}

func (f *fixture) addLocalPhoto(t *testing.T, woID string) *models.WorkOrderPhoto {
	t.Helper()
	path, err := f.cache.Store([]byte("jpeg-" + woID))
	if err != nil {
		t.Fatal(err)
	}
	p := &models.WorkOrderPhoto{WorkOrderID: woID, LocalURI: &path}
	if err := f.store.CreatePhoto(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

// TestSync_uploadGatedOnParent verifies photos wait for their work order to sync.
func TestSync_uploadGatedOnParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	synced := f.addWorkOrder(t, true)
	unsynced := f.addWorkOrder(t, false)
	ready := f.addLocalPhoto(t, synced.ID)
	waiting := f.addLocalPhoto(t, unsynced.ID)

	result, err := f.syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Uploaded != 1 || result.Skipped != 1 {
		t.Errorf("Sync() = %+v, want 1 uploaded and 1 skipped", result)
	}

	got, _ := f.store.GetPhoto(ctx, ready.ID)
	want := "mem://photos/" + ObjectKey(synced.ID, ready.ID)
	if models.Deref(got.RemoteURL) != want {
		t.Errorf("RemoteURL = %q, want %q", models.Deref(got.RemoteURL), want)
	}
	if got.LocalSyncStatus != models.SyncPending {
		t.Errorf("LocalSyncStatus = %s, want pending so the URL gets pushed", got.LocalSyncStatus)
	}

	other, _ := f.store.GetPhoto(ctx, waiting.ID)
	if other.RemoteURL != nil {
		t.Error("photo of an unsynced work order should not be uploaded")
	}
}

// TestSync_retryAndAbandon verifies tracked failures back off and give up.
func TestSync_retryAndAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wo := f.addWorkOrder(t, true)
	p := f.addLocalPhoto(t, wo.ID)

	boom := errors.New("connection reset")
	f.objects.FailUploads(boom)

	result, err := f.syncer.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}

	// Still inside the backoff window.
	result, _ = f.syncer.Sync(ctx)
	if result.Skipped != 1 || result.Uploaded != 0 {
		t.Errorf("second Sync() = %+v, want skipped while backing off", result)
	}

	f.clock.Advance(2 * time.Second)
	result, _ = f.syncer.Sync(ctx)
	if result.Uploaded != 1 {
		t.Errorf("third Sync() = %+v, want the retry to upload", result)
	}
	if _, tracked, _ := f.syncer.Tracker().Get(p.ID); tracked {
		t.Error("successful upload should leave the tracker")
	}
}

func TestTracker_abandons(t *testing.T) {
	c := clock.NewMock()
	tracker := NewTracker(kv.NewMemory(), backoff.New(backoff.DefaultConfig(), c), c)

	var last *Upload
	for i := 0; i < MaxUploadAttempts; i++ {
		var err error
		last, err = tracker.RecordFailure("p-1", "wo-1", errors.New("timeout"))
		if err != nil {
			t.Fatal(err)
		}
	}
	if !last.Abandoned {
		t.Errorf("Abandoned = false after %d attempts", MaxUploadAttempts)
	}

	c.Advance(time.Hour)
	ready, _ := tracker.Ready()
	if len(ready) != 0 {
		t.Errorf("Ready() = %v, want abandoned uploads excluded", ready)
	}

	stats, _ := tracker.Stats()
	if stats.Abandoned != 1 || stats.Waiting != 0 {
		t.Errorf("Stats() = %+v, want 1 abandoned", stats)
	}
}

// TestSync_download verifies remote photos are cached without marking them pending.
func TestSync_download(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wo := f.addWorkOrder(t, true)
	url := "mem://photos/" + ObjectKey(wo.ID, "p-remote")
	f.objects.Put(url, []byte("remote jpeg"))

	p := &models.WorkOrderPhoto{
		SyncableRecord: models.SyncableRecord{ID: "p-remote", LocalSyncStatus: models.SyncSynced},
		WorkOrderID:    wo.ID,
		RemoteURL:      &url,
	}
	p.MarkSynced(p.ID, f.clock.Now().UnixMilli())
	if err := f.store.InsertPhoto(ctx, p); err != nil {
		t.Fatal(err)
	}

	broken := "mem://photos/missing.jpg"
	if err := f.store.InsertPhoto(ctx, &models.WorkOrderPhoto{
		SyncableRecord: models.SyncableRecord{ID: "p-broken", LocalSyncStatus: models.SyncSynced},
		WorkOrderID:    wo.ID,
		RemoteURL:      &broken,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Downloaded != 1 || result.Failed != 1 {
		t.Errorf("Sync() = %+v, want 1 downloaded and 1 failed", result)
	}

	got, _ := f.store.GetPhoto(ctx, "p-remote")
	if got.LocalURI == nil {
		t.Fatal("LocalURI should be set")
	}
	if got.LocalSyncStatus != models.SyncSynced {
		t.Errorf("LocalSyncStatus = %s, want synced", got.LocalSyncStatus)
	}
	data, _ := f.cache.Read(*got.LocalURI)
	if string(data) != "remote jpeg" {
		t.Errorf("cached bytes = %q", data)
	}
}
