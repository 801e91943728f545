// Package queue provides unit tests for the retry queue.
package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/backoff"
)

func newTestQueue(t *testing.T) (*Queue, *clock.Mock, kv.Store) {
	t.Helper()
	c := clock.NewMock()
	store := kv.NewMemory()
	b := backoff.New(backoff.DefaultConfig(), c).WithRand(func() float64 { return 0 })
	return New(store, b, c), c, store
}

var (
	transient = apperrors.ClassifiedError{Category: apperrors.CategoryTransient, ShouldRetry: true, MaxRetries: 10, TechnicalMessage: "timeout"}
	auth      = apperrors.ClassifiedError{Category: apperrors.CategoryAuth, RequiresUserAction: true, TechnicalMessage: "401"}
)

func mustEnqueue(t *testing.T, q *Queue, record, table string, priority int) string {
	t.Helper()
	id, err := q.Enqueue(record, table, models.OpPush, priority, 0)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return id
}

// TestEnqueue verifies new item defaults.
func TestEnqueue(t *testing.T) {
	q, c, _ := newTestQueue(t)

	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	item, err := q.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if item.State != models.QueuePending {
		t.Errorf("State = %s, want pending", item.State)
	}
	if item.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", item.Attempts)
	}
	if item.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", item.MaxAttempts, DefaultMaxAttempts)
	}
	if item.Priority != 4 {
		t.Errorf("Priority = %d, want 4", item.Priority)
	}
	if item.CreatedAt != c.Now().UnixMilli() {
		t.Errorf("CreatedAt = %d, want %d", item.CreatedAt, c.Now().UnixMilli())
	}
}

// TestEnqueue_idempotent verifies duplicate work is not queued twice while active.
func TestEnqueue_idempotent(t *testing.T) {
	q, _, _ := newTestQueue(t)

	first := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	second := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	if first != second {
		t.Errorf("second Enqueue() = %s, want %s", second, first)
	}

	// A different operation is a different unit of work.
	pull, err := q.Enqueue("wo-1", models.TableWorkOrders, models.OpPull, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pull == first {
		t.Error("pull and push should be queued separately")
	}

	items, _ := q.List()
	if len(items) != 2 {
		t.Errorf("queue size = %d, want 2", len(items))
	}

	// Still idempotent while failed or in progress.
	if err := q.MarkInProgress(first); err != nil {
		t.Fatal(err)
	}
	if again := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0); again != first {
		t.Errorf("Enqueue() while in progress = %s, want %s", again, first)
	}
}

// TestEnqueue_afterTerminal verifies a fresh item is created once the prior one is done.
func TestEnqueue_afterTerminal(t *testing.T) {
	q, _, _ := newTestQueue(t)

	first := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	if err := q.MarkCompleted(first); err != nil {
		t.Fatal(err)
	}
	second := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	if second == first {
		t.Error("Enqueue() after completion returned the old ID")
	}

	if err := q.MarkAbandoned(second, "user cancelled"); err != nil {
		t.Fatal(err)
	}
	third := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	if third == second {
		t.Error("Enqueue() after abandonment returned the old ID")
	}
}

func TestDefaultPriority(t *testing.T) {
	tests := []struct {
		table string
		want  int
	}{
		{models.TableWorkOrders, 4},
		{models.TableAssets, 4},
		{models.TableMeterReadings, 5},
		{models.TablePhotos, 5},
	}
	for _, tt := range tests {
		if got := DefaultPriority(tt.table); got != tt.want {
			t.Errorf("DefaultPriority(%s) = %d, want %d", tt.table, got, tt.want)
		}
	}
}

func TestCalculateWorkOrderPriority(t *testing.T) {
	tests := []struct {
		priority models.Priority
		status   models.WorkOrderStatus
		want     int
	}{
		{models.PriorityEmergency, models.StatusCompleted, 1},
		{models.PriorityEmergency, models.StatusOpen, 1},
		{models.PriorityLow, models.StatusCompleted, 2},
		{models.PriorityHigh, models.StatusCompleted, 2},
		{models.PriorityLow, models.StatusInProgress, 3},
		{models.PriorityHigh, models.StatusOpen, 3},
		{models.PriorityMedium, models.StatusOpen, 4},
		{models.PriorityLow, models.StatusOpen, 4},
	}
	for _, tt := range tests {
		if got := CalculateWorkOrderPriority(tt.priority, tt.status); got != tt.want {
			t.Errorf("CalculateWorkOrderPriority(%s, %s) = %d, want %d", tt.priority, tt.status, got, tt.want)
		}
	}
}

// TestRetryableItems_ordering verifies priority then FIFO ordering.
func TestRetryableItems_ordering(t *testing.T) {
	q, c, _ := newTestQueue(t)

	priorities := []int{5, 1, 4, 1, 3, 5, 2, 4}
	for i, p := range priorities {
		mustEnqueue(t, q, fmt.Sprintf("r-%d", i), models.TableWorkOrders, p)
		c.Advance(time.Second)
	}

	items, err := q.RetryableItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != len(priorities) {
		t.Fatalf("RetryableItems() = %d items, want %d", len(items), len(priorities))
	}

	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.Priority < prev.Priority {
			t.Errorf("item %d priority %d before %d", i, prev.Priority, cur.Priority)
		}
		if cur.Priority == prev.Priority && cur.CreatedAt < prev.CreatedAt {
			t.Errorf("item %d not FIFO within priority %d", i, cur.Priority)
		}
	}
}

// TestRetryableItems_backoffGate verifies failed items wait for their retry time.
func TestRetryableItems_backoffGate(t *testing.T) {
	q, c, _ := newTestQueue(t)

	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	if err := q.MarkInProgress(id); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkFailed(id, transient); err != nil {
		t.Fatal(err)
	}

	items, _ := q.RetryableItems()
	if len(items) != 0 {
		t.Errorf("RetryableItems() right after failure = %d, want 0", len(items))
	}

	// Attempt 1 schedules base * 2^1 = 2s.
	c.Advance(1999 * time.Millisecond)
	items, _ = q.RetryableItems()
	if len(items) != 0 {
		t.Errorf("RetryableItems() before nextRetryAt = %d, want 0", len(items))
	}

	c.Advance(time.Millisecond)
	items, _ = q.RetryableItems()
	if len(items) != 1 {
		t.Errorf("RetryableItems() at nextRetryAt = %d, want 1", len(items))
	}

	// In-progress items are never retryable.
	if err := q.MarkInProgress(id); err != nil {
		t.Fatal(err)
	}
	items, _ = q.RetryableItems()
	if len(items) != 0 {
		t.Errorf("RetryableItems() with in-progress item = %d, want 0", len(items))
	}
}

func TestMarkInProgress(t *testing.T) {
	q, c, _ := newTestQueue(t)
	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)

	if err := q.MarkInProgress(id); err != nil {
		t.Fatal(err)
	}
	item, _ := q.Get(id)
	if item.State != models.QueueInProgress || item.Attempts != 1 {
		t.Errorf("item = %s/%d, want in_progress/1", item.State, item.Attempts)
	}
	if item.LastAttemptAt == nil || *item.LastAttemptAt != c.Now().UnixMilli() {
		t.Errorf("LastAttemptAt = %v, want now", item.LastAttemptAt)
	}

	if err := q.MarkInProgress("missing"); !apperrors.Is(err, apperrors.ErrQueueItemMissing) {
		t.Errorf("MarkInProgress(missing) error = %v, want QUEUE_ITEM_NOT_FOUND", err)
	}
}

func TestMarkCompleted_removesItem(t *testing.T) {
	q, _, _ := newTestQueue(t)
	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)

	if err := q.MarkCompleted(id); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Get(id); err == nil {
		t.Error("completed item still present")
	}
}

func TestMarkFailed(t *testing.T) {
	tests := []struct {
		name       string
		attempts   int
		max        int
		classified apperrors.ClassifiedError
		want       models.QueueState
	}{
		{"retryable below max", 1, 10, transient, models.QueueFailed},
		{"non-retryable", 1, 10, auth, models.QueueAbandoned},
		{"attempts at max", 3, 3, transient, models.QueueAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, c, _ := newTestQueue(t)
			id, err := q.Enqueue("wo-1", models.TableWorkOrders, models.OpPush, 0, tt.max)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < tt.attempts; i++ {
				if err := q.MarkInProgress(id); err != nil {
					t.Fatal(err)
				}
			}

			if err := q.MarkFailed(id, tt.classified); err != nil {
				t.Fatalf("MarkFailed() error = %v", err)
			}
			item, _ := q.Get(id)
			if item.State != tt.want {
				t.Errorf("State = %s, want %s", item.State, tt.want)
			}
			if item.ErrorCategory != string(tt.classified.Category) {
				t.Errorf("ErrorCategory = %q, want %q", item.ErrorCategory, tt.classified.Category)
			}
			if tt.want == models.QueueFailed {
				if item.NextRetryAt == nil || *item.NextRetryAt <= c.Now().UnixMilli() {
					t.Errorf("NextRetryAt = %v, want future", item.NextRetryAt)
				}
			}
		})
	}
}

// TestRecoverStaleItems verifies only in-progress items past the threshold are demoted.
func TestRecoverStaleItems(t *testing.T) {
	q, c, _ := newTestQueue(t)

	stale := mustEnqueue(t, q, "stale", models.TableWorkOrders, 0)
	if err := q.MarkInProgress(stale); err != nil {
		t.Fatal(err)
	}
	c.Advance(20 * time.Minute)

	fresh := mustEnqueue(t, q, "fresh", models.TableWorkOrders, 0)
	if err := q.MarkInProgress(fresh); err != nil {
		t.Fatal(err)
	}
	c.Advance(11 * time.Minute)

	n, err := q.RecoverStaleItems(30 * time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("RecoverStaleItems() = %d, want 1", n)
	}

	item, _ := q.Get(stale)
	if item.State != models.QueueFailed {
		t.Errorf("stale State = %s, want failed", item.State)
	}
	if item.NextRetryAt == nil || *item.NextRetryAt <= c.Now().UnixMilli() {
		t.Errorf("stale NextRetryAt = %v, want future", item.NextRetryAt)
	}

	item, _ = q.Get(fresh)
	if item.State != models.QueueInProgress {
		t.Errorf("fresh State = %s, want in_progress", item.State)
	}
}

func TestPrune(t *testing.T) {
	q, c, _ := newTestQueue(t)

	oldAbandoned := mustEnqueue(t, q, "a", models.TableAssets, 0)
	oldActive := mustEnqueue(t, q, "b", models.TableAssets, 0)
	if err := q.MarkAbandoned(oldAbandoned, "gone"); err != nil {
		t.Fatal(err)
	}
	c.Advance(25 * time.Hour)
	newAbandoned := mustEnqueue(t, q, "c", models.TableAssets, 0)
	if err := q.MarkAbandoned(newAbandoned, "gone"); err != nil {
		t.Fatal(err)
	}

	removed, err := q.Prune(DefaultPruneAge)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if _, err := q.Get(oldAbandoned); err == nil {
		t.Error("old abandoned item should be pruned")
	}
	if _, err := q.Get(oldActive); err != nil {
		t.Error("active item must survive pruning regardless of age")
	}
	if _, err := q.Get(newAbandoned); err != nil {
		t.Error("recent abandoned item should survive")
	}
}

// TestEnforceCap verifies terminal items are dropped before active ones.
func TestEnforceCap(t *testing.T) {
	var items []*Item
	for i := 0; i < MaxItems+2; i++ {
		state := models.QueuePending
		if i == 10 || i == 20 {
			state = models.QueueAbandoned
		}
		items = append(items, &Item{ID: fmt.Sprintf("i-%d", i), State: state, CreatedAt: int64(i)})
	}

	kept := enforceCap(items)
	if len(kept) != MaxItems {
		t.Fatalf("len = %d, want %d", len(kept), MaxItems)
	}
	for _, item := range kept {
		if item.State == models.QueueAbandoned {
			t.Errorf("terminal item %s kept while active items were at cap", item.ID)
		}
	}

	// Without terminal items the oldest active ones go.
	items = items[:0]
	for i := 0; i < MaxItems+1; i++ {
		items = append(items, &Item{ID: fmt.Sprintf("j-%d", i), State: models.QueuePending, CreatedAt: int64(i)})
	}
	kept = enforceCap(items)
	if len(kept) != MaxItems || kept[0].ID != "j-1" {
		t.Errorf("oldest active item not dropped: len=%d first=%s", len(kept), kept[0].ID)
	}
}

func TestStatsAndBlockingIssues(t *testing.T) {
	q, c, _ := newTestQueue(t)

	waiting := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	c.Advance(time.Minute)
	blocked := mustEnqueue(t, q, "mr-1", models.TableMeterReadings, 0)
	if err := q.MarkFailed(blocked, auth); err != nil {
		t.Fatal(err)
	}
	transientAbandoned := mustEnqueue(t, q, "as-1", models.TableAssets, 0)
	if err := q.MarkAbandoned(transientAbandoned, "cancelled"); err != nil {
		t.Fatal(err)
	}
	c.Advance(time.Minute)

	stats, err := q.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByState[models.QueuePending] != 1 || stats.ByState[models.QueueAbandoned] != 2 {
		t.Errorf("ByState = %v", stats.ByState)
	}
	if stats.ByTable[models.TableMeterReadings] != 1 {
		t.Errorf("ByTable = %v", stats.ByTable)
	}
	if stats.ByPriority[4] != 2 || stats.ByPriority[5] != 1 {
		t.Errorf("ByPriority = %v", stats.ByPriority)
	}
	if stats.Waiting != 1 || stats.Blocked != 1 {
		t.Errorf("Waiting/Blocked = %d/%d, want 1/1", stats.Waiting, stats.Blocked)
	}
	if stats.OldestActiveAge != 2*time.Minute {
		t.Errorf("OldestActiveAge = %v, want 2m", stats.OldestActiveAge)
	}

	issues, err := q.BlockingIssues()
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 || issues[0].ID != blocked {
		t.Errorf("BlockingIssues() = %v, want [%s]", issues, blocked)
	}
	_ = waiting
}

// TestQueue_persistence verifies a second Queue over the same store sees the items.
func TestQueue_persistence(t *testing.T) {
	q, c, store := newTestQueue(t)
	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 2)

	reopened := New(store, backoff.New(backoff.DefaultConfig(), c), c)
	item, err := reopened.Get(id)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if item.Priority != 2 {
		t.Errorf("Priority = %d, want 2", item.Priority)
	}
}

func TestRemoveForRecordAndFind(t *testing.T) {
	q, _, _ := newTestQueue(t)

	id := mustEnqueue(t, q, "wo-1", models.TableWorkOrders, 0)
	active, _ := q.FindActive("wo-1", models.TableWorkOrders, models.OpPush)
	if active == nil || active.ID != id {
		t.Fatalf("FindActive() = %v, want %s", active, id)
	}

	if err := q.MarkFailed(id, auth); err != nil {
		t.Fatal(err)
	}
	if active, _ := q.FindActive("wo-1", models.TableWorkOrders, models.OpPush); active != nil {
		t.Error("FindActive() returned abandoned item")
	}
	latest, _ := q.FindLatest("wo-1", models.TableWorkOrders, models.OpPush)
	if latest == nil || latest.ID != id {
		t.Errorf("FindLatest() = %v, want %s", latest, id)
	}

	if err := q.RemoveForRecord("wo-1", models.TableWorkOrders); err != nil {
		t.Fatal(err)
	}
	if latest, _ := q.FindLatest("wo-1", models.TableWorkOrders, models.OpPush); latest != nil {
		t.Error("RemoveForRecord() left the terminal item")
	}
}
