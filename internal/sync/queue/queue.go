// Package queue provides the durable retry queue for failed sync operations.
// Items live in a single key-value document that is loaded, mutated and saved
// whole on every change.
package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/backoff"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

const (
	// StorageKey is the key-value entry holding the serialized queue.
	StorageKey = "retry_queue"
	// MaxItems caps the stored queue size.
	MaxItems = 1000
	// DefaultMaxAttempts applies when Enqueue is given no limit.
	DefaultMaxAttempts = 10
	// DefaultStaleThreshold is how long an in-progress item may go untouched.
	DefaultStaleThreshold = 30 * time.Minute
	// DefaultPruneAge is how long terminal items are kept.
	DefaultPruneAge = 24 * time.Hour
)

// Item is one queued unit of retriable work.
type Item = models.RetryQueueItem

// Queue is the retry queue. Methods are safe for concurrent use within one
// process; the backing document is last-writer-wins across processes.
type Queue struct {
	mu      sync.Mutex
	store   kv.Store
	backoff *backoff.Calculator
	clock   clock.Clock
}

// New creates a Queue over store.
func New(store kv.Store, b *backoff.Calculator, c clock.Clock) *Queue {
	return &Queue{store: store, backoff: b, clock: c}
}

func (q *Queue) now() int64 {
	return q.clock.Now().UnixMilli()
}

func (q *Queue) load() ([]*Item, error) {
	var items []*Item
	if _, err := kv.GetJSON(q.store, StorageKey, &items); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreRead, "load retry queue", err)
	}
	return items, nil
}

func (q *Queue) save(items []*Item) error {
	if items == nil {
		items = []*Item{}
	}
	if err := kv.SetJSON(q.store, StorageKey, items); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "save retry queue", err)
	}
	return nil
}

// update loads the queue, applies fn and saves the result.
func (q *Queue) update(fn func([]*Item) ([]*Item, error)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return q.save(items)
}

func (q *Queue) read() ([]*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func find(items []*Item, id string) (*Item, error) {
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrQueueItemMissing, fmt.Sprintf("retry queue item %s not found", id))
}

func findActive(items []*Item, recordID, tableName string, op models.Operation) *Item {
	for _, item := range items {
		if item.Matches(recordID, tableName, op) && !item.State.Terminal() {
			return item
		}
	}
	return nil
}

// DefaultPriority returns the queue priority for a table.
func DefaultPriority(tableName string) int {
	switch tableName {
	case models.TableWorkOrders, models.TableAssets:
		return 4
	default:
		return 5
	}
}

// CalculateWorkOrderPriority ranks a work order for push and retry ordering.
// Emergency outranks everything, including completion.
func CalculateWorkOrderPriority(priority models.Priority, status models.WorkOrderStatus) int {
	switch {
	case priority == models.PriorityEmergency:
		return 1
	case status == models.StatusCompleted:
		return 2
	case status == models.StatusInProgress || priority == models.PriorityHigh:
		return 3
	default:
		return 4
	}
}

// Enqueue queues work for a record. If a non-terminal item already exists for
// the same record, table and operation, its ID is returned and nothing changes.
// Zero priority or maxAttempts select the defaults.
func (q *Queue) Enqueue(recordID, tableName string, op models.Operation, priority, maxAttempts int) (string, error) {
	var id string
	err := q.update(func(items []*Item) ([]*Item, error) {
		if existing := findActive(items, recordID, tableName, op); existing != nil {
			id = existing.ID
			return items, nil
		}

		if priority <= 0 {
			priority = DefaultPriority(tableName)
		}
		if maxAttempts <= 0 {
			maxAttempts = DefaultMaxAttempts
		}

		item := &Item{
			ID:          uuid.New(),
			RecordID:    recordID,
			TableName:   tableName,
			Operation:   op,
			State:       models.QueuePending,
			Priority:    priority,
			MaxAttempts: maxAttempts,
			CreatedAt:   q.now(),
		}
		id = item.ID

		items = enforceCap(append(items, item))

		logging.Info("Retry queue item enqueued", map[string]interface{}{
			"id":        item.ID,
			"record_id": recordID,
			"table":     tableName,
			"operation": string(op),
			"priority":  priority,
		})
		return items, nil
	})
	return id, err
}

// enforceCap drops the oldest terminal items, then the oldest of any state.
func enforceCap(items []*Item) []*Item {
	if len(items) <= MaxItems {
		return items
	}

	sorted := make([]*Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})

	drop := make(map[string]bool)
	excess := len(items) - MaxItems
	for _, item := range sorted {
		if excess == 0 {
			break
		}
		if item.State.Terminal() {
			drop[item.ID] = true
			excess--
		}
	}
	if excess > 0 {
		logging.Warn("Retry queue full, dropping oldest active items", map[string]interface{}{
			"dropped": excess,
		})
		for _, item := range sorted {
			if excess == 0 {
				break
			}
			if !drop[item.ID] {
				drop[item.ID] = true
				excess--
			}
		}
	}

	kept := items[:0:0]
	for _, item := range items {
		if !drop[item.ID] {
			kept = append(kept, item)
		}
	}
	return kept
}

// RetryableItems returns pending or failed items whose backoff has elapsed,
// ordered by priority then age.
func (q *Queue) RetryableItems() ([]*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}

	now := q.now()
	var ready []*Item
	for _, item := range items {
		if item.State != models.QueuePending && item.State != models.QueueFailed {
			continue
		}
		var last int64
		if item.LastAttemptAt != nil {
			last = *item.LastAttemptAt
		}
		if !q.backoff.IsReadyForRetry(last, item.Attempts) {
			continue
		}
		if item.NextRetryAt != nil && *item.NextRetryAt > now {
			continue
		}
		ready = append(ready, item)
	}

	sortByPriority(ready)
	return ready, nil
}

func sortByPriority(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].CreatedAt < items[j].CreatedAt
	})
}

// MarkInProgress records the start of an attempt.
func (q *Queue) MarkInProgress(id string) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		item, err := find(items, id)
		if err != nil {
			return nil, err
		}
		now := q.now()
		item.State = models.QueueInProgress
		item.Attempts++
		item.LastAttemptAt = &now
		return items, nil
	})
}

// MarkCompleted removes a successfully processed item.
func (q *Queue) MarkCompleted(id string) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		if _, err := find(items, id); err != nil {
			return nil, err
		}
		kept := items[:0]
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		logging.Debug("Retry queue item completed", map[string]interface{}{"id": id})
		return kept, nil
	})
}

// MarkFailed records a failed attempt. The item is abandoned when attempts are
// exhausted or the error is not retryable; otherwise it is rescheduled.
func (q *Queue) MarkFailed(id string, classified apperrors.ClassifiedError) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		item, err := find(items, id)
		if err != nil {
			return nil, err
		}

		now := q.now()
		item.LastError = classified.TechnicalMessage
		item.ErrorCategory = string(classified.Category)
		if item.LastAttemptAt == nil {
			item.LastAttemptAt = &now
		}

		if item.Attempts >= item.MaxAttempts || !classified.ShouldRetry {
			item.State = models.QueueAbandoned
			item.NextRetryAt = nil
			logging.Warn("Retry queue item abandoned", map[string]interface{}{
				"id":        id,
				"record_id": item.RecordID,
				"table":     item.TableName,
				"attempts":  item.Attempts,
				"category":  item.ErrorCategory,
			})
			return items, nil
		}

		delay := q.backoff.Delay(item.Attempts)
		next := now + delay.Milliseconds()
		item.State = models.QueueFailed
		item.NextRetryAt = &next
		logging.Info("Retry queue item rescheduled", map[string]interface{}{
			"id":        id,
			"record_id": item.RecordID,
			"attempts":  item.Attempts,
			"retry_in":  backoff.FormatDelay(delay),
		})
		return items, nil
	})
}

// MarkAbandoned moves an item to the terminal abandoned state with a reason.
func (q *Queue) MarkAbandoned(id, reason string) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		item, err := find(items, id)
		if err != nil {
			return nil, err
		}
		item.State = models.QueueAbandoned
		item.LastError = reason
		item.NextRetryAt = nil
		logging.Info("Retry queue item abandoned", map[string]interface{}{
			"id":     id,
			"reason": reason,
		})
		return items, nil
	})
}

// SetLastError annotates an item with an error without changing its state.
func (q *Queue) SetLastError(id string, classified apperrors.ClassifiedError) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		item, err := find(items, id)
		if err != nil {
			return nil, err
		}
		item.LastError = classified.TechnicalMessage
		item.ErrorCategory = string(classified.Category)
		return items, nil
	})
}

// RecoverStaleItems demotes in-progress items whose last attempt is older than
// threshold back to failed with a fresh retry time.
func (q *Queue) RecoverStaleItems(threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	recovered := 0
	err := q.update(func(items []*Item) ([]*Item, error) {
		now := q.now()
		cutoff := now - threshold.Milliseconds()
		for _, item := range items {
			if item.State != models.QueueInProgress {
				continue
			}
			if item.LastAttemptAt != nil && *item.LastAttemptAt >= cutoff {
				continue
			}
			next := now + q.backoff.Delay(item.Attempts).Milliseconds()
			item.State = models.QueueFailed
			item.NextRetryAt = &next
			recovered++
		}
		return items, nil
	})
	if recovered > 0 {
		logging.Info("Recovered stale retry queue items", map[string]interface{}{"count": recovered})
	}
	return recovered, err
}

// Prune removes terminal items created before olderThan ago. Active items are
// always kept.
func (q *Queue) Prune(olderThan time.Duration) (int, error) {
	removed := 0
	err := q.update(func(items []*Item) ([]*Item, error) {
		cutoff := q.now() - olderThan.Milliseconds()
		kept := items[:0]
		for _, item := range items {
			if item.State.Terminal() && item.CreatedAt < cutoff {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		return kept, nil
	})
	return removed, err
}

// RemoveForRecord drops terminal items for a record, typically after it
// finally pushed cleanly.
func (q *Queue) RemoveForRecord(recordID, tableName string) error {
	return q.update(func(items []*Item) ([]*Item, error) {
		kept := items[:0]
		for _, item := range items {
			if item.RecordID == recordID && item.TableName == tableName && item.State.Terminal() {
				continue
			}
			kept = append(kept, item)
		}
		return kept, nil
	})
}

// FindActive returns the non-terminal item for a unit of work, or nil.
func (q *Queue) FindActive(recordID, tableName string, op models.Operation) (*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}
	return findActive(items, recordID, tableName, op), nil
}

// FindLatest returns the most recently created item for a unit of work in any
// state, or nil.
func (q *Queue) FindLatest(recordID, tableName string, op models.Operation) (*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}
	var latest *Item
	for _, item := range items {
		if item.Matches(recordID, tableName, op) && (latest == nil || item.CreatedAt >= latest.CreatedAt) {
			latest = item
		}
	}
	return latest, nil
}

// Get returns a copy of one item.
func (q *Queue) Get(id string) (*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}
	item, err := find(items, id)
	if err != nil {
		return nil, err
	}
	c := *item
	return &c, nil
}

// List returns all items in priority order.
func (q *Queue) List() ([]*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}
	sortByPriority(items)
	return items, nil
}

// Clear removes every item.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Remove(StorageKey); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "clear retry queue", err)
	}
	logging.Info("Retry queue cleared")
	return nil
}
