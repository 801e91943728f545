// Package conflictlog provides unit tests for the conflict audit log.
package conflictlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/models"
)

func newTestLog(t *testing.T) (*Log, *clock.Mock) {
	t.Helper()
	c := clock.NewMock()
	return New(kv.NewMemory(), c), c
}

func mustAppend(t *testing.T, l *Log, e Entry) Entry {
	t.Helper()
	got, err := l.Append(e)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return got
}

func escalated(table, id string, names ...string) Entry {
	return Entry{TableName: table, LocalRecordID: id, Escalations: names}
}

func resolved(table, id string) Entry {
	return Entry{
		TableName:     table,
		LocalRecordID: id,
		AutoResolved:  true,
		Resolutions: []models.ConflictResolution{
			{FieldName: "status", LocalValue: "completed", RemoteValue: "open", ResolvedValue: "completed", Rule: "completion_wins"},
		},
	}
}

// TestAppend verifies ids and timestamps are filled in and newest comes first.
func TestAppend(t *testing.T) {
	l, c := newTestLog(t)

	first := mustAppend(t, l, resolved(models.TableWorkOrders, "wo-1"))
	if first.ID == "" {
		t.Error("ID should be generated")
	}
	if first.Timestamp != c.Now().UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", first.Timestamp, c.Now().UnixMilli())
	}

	c.Advance(time.Minute)
	second := mustAppend(t, l, Entry{ID: "fixed", Timestamp: 42, TableName: models.TableAssets})
	if second.ID != "fixed" || second.Timestamp != 42 {
		t.Errorf("Append() overwrote caller id/timestamp: %+v", second)
	}

	recent, err := l.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "fixed" {
		t.Errorf("Recent() order = %v, want newest first", recent)
	}
}

// TestAppend_retention verifies the entry cap and the age cutoff.
func TestAppend_retention(t *testing.T) {
	l, c := newTestLog(t)

	mustAppend(t, l, resolved(models.TableAssets, "old"))
	c.Advance(Retention + time.Hour)

	for i := 0; i < MaxEntries+5; i++ {
		mustAppend(t, l, resolved(models.TableWorkOrders, fmt.Sprintf("wo-%d", i)))
	}

	all, err := l.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != MaxEntries {
		t.Errorf("len = %d, want %d", len(all), MaxEntries)
	}
	if got, _ := l.ForRecord(models.TableAssets, "old"); len(got) != 0 {
		t.Error("expired entry should be dropped")
	}
	if all[0].LocalRecordID != fmt.Sprintf("wo-%d", MaxEntries+4) {
		t.Errorf("newest = %s, want the last appended", all[0].LocalRecordID)
	}
}

func TestPrune(t *testing.T) {
	l, c := newTestLog(t)
	mustAppend(t, l, resolved(models.TableAssets, "a-1"))
	c.Advance(20 * 24 * time.Hour)
	mustAppend(t, l, resolved(models.TableAssets, "a-2"))
	c.Advance(15 * 24 * time.Hour)

	n, err := l.Prune()
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if n, _ := l.Prune(); n != 0 {
		t.Errorf("second Prune() = %d, want 0", n)
	}
}

func TestQueries(t *testing.T) {
	l, c := newTestLog(t)
	start := c.Now()

	mustAppend(t, l, resolved(models.TableWorkOrders, "wo-1"))
	c.Advance(time.Hour)
	mustAppend(t, l, escalated(models.TableWorkOrders, "wo-1", "completion_conflict"))
	c.Advance(time.Hour)
	mustAppend(t, l, escalated(models.TableMeterReadings, "mr-1", "same_time_different_values"))

	recent, _ := l.Recent(2)
	if len(recent) != 2 || recent[0].LocalRecordID != "mr-1" {
		t.Errorf("Recent(2) = %v", recent)
	}

	forRecord, _ := l.ForRecord(models.TableWorkOrders, "wo-1")
	if len(forRecord) != 2 {
		t.Errorf("ForRecord() len = %d, want 2", len(forRecord))
	}

	esc, _ := l.Escalated()
	if len(esc) != 2 {
		t.Errorf("Escalated() len = %d, want 2", len(esc))
	}

	inRange, _ := l.InRange(start.Add(30*time.Minute), start.Add(90*time.Minute))
	if len(inRange) != 1 || inRange[0].Escalations[0] != "completion_conflict" {
		t.Errorf("InRange() = %v, want the completion conflict", inRange)
	}
}

// TestMarkReviewed verifies review metadata is attached without touching the decision.
func TestMarkReviewed(t *testing.T) {
	l, c := newTestLog(t)
	entry := mustAppend(t, l, escalated(models.TableWorkOrders, "wo-1", "signature_mismatch"))

	c.Advance(time.Hour)
	if err := l.MarkReviewed(entry.ID, "supervisor", "confirmed with site"); err != nil {
		t.Fatalf("MarkReviewed() error = %v", err)
	}

	got, err := l.Get(entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := &models.ConflictReview{ReviewedBy: "supervisor", ReviewedAt: c.Now().UnixMilli(), Notes: "confirmed with site"}
	if diff := cmp.Diff(want, got.Review); diff != "" {
		t.Errorf("Review mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(entry.Escalations, got.Escalations); diff != "" {
		t.Errorf("Escalations changed (-want +got):\n%s", diff)
	}
	if got.Timestamp != entry.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, entry.Timestamp)
	}

	unreviewed, _ := l.Unreviewed()
	if len(unreviewed) != 0 {
		t.Errorf("Unreviewed() len = %d, want 0", len(unreviewed))
	}

	err = l.MarkReviewed("missing", "supervisor", "")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("MarkReviewed(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestStats(t *testing.T) {
	l, c := newTestLog(t)

	mustAppend(t, l, resolved(models.TableWorkOrders, "wo-1"))
	c.Advance(3 * 24 * time.Hour)
	mustAppend(t, l, escalated(models.TableWorkOrders, "wo-2", "completion_conflict", "backdated_completion"))
	mustAppend(t, l, resolved(models.TableAssets, "a-1"))

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	want := Stats{
		Total:        3,
		AutoResolved: 2,
		Escalated:    1,
		Unreviewed:   1,
		ByTable:      map[string]int{models.TableWorkOrders: 2, models.TableAssets: 1},
		ByEscalation: map[string]int{"completion_conflict": 1, "backdated_completion": 1},
		Last24h:      2,
		Last7d:       3,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistence(t *testing.T) {
	store := kv.NewMemory()
	c := clock.NewMock()

	entry, err := New(store, c).Append(escalated(models.TablePhotos, "p-1", "x"))
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := New(store, c).Get(entry.ID)
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	if reloaded.LocalRecordID != "p-1" {
		t.Errorf("LocalRecordID = %s, want p-1", reloaded.LocalRecordID)
	}
}
