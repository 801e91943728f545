package queue

import (
	"time"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// Stats summarizes the queue for status displays and diagnostics.
type Stats struct {
	Total      int                       `json:"total"`
	ByState    map[models.QueueState]int `json:"by_state"`
	ByTable    map[string]int            `json:"by_table"`
	ByPriority map[int]int               `json:"by_priority"`
	// OldestActiveAge is the age of the oldest non-terminal item, zero if none.
	OldestActiveAge time.Duration `json:"oldest_active_age"`
	// Waiting counts active items automatic retry may still resolve.
	Waiting int `json:"waiting"`
	// Blocked counts items that need user intervention.
	Blocked int `json:"blocked"`
}

// Stats returns counts by state, table and priority.
func (q *Queue) Stats() (Stats, error) {
	items, err := q.read()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:      len(items),
		ByState:    make(map[models.QueueState]int),
		ByTable:    make(map[string]int),
		ByPriority: make(map[int]int),
	}

	now := q.now()
	var oldest int64
	for _, item := range items {
		stats.ByState[item.State]++
		stats.ByTable[item.TableName]++
		stats.ByPriority[item.Priority]++

		if isBlocking(item) {
			stats.Blocked++
		}
		if item.State.Terminal() {
			continue
		}
		if !isBlocking(item) {
			stats.Waiting++
		}
		if oldest == 0 || item.CreatedAt < oldest {
			oldest = item.CreatedAt
		}
	}
	if oldest > 0 {
		stats.OldestActiveAge = time.Duration(now-oldest) * time.Millisecond
	}
	return stats, nil
}

func isBlocking(item *Item) bool {
	if item.State != models.QueueFailed && item.State != models.QueueAbandoned {
		return false
	}
	return apperrors.Category(item.ErrorCategory).Blocking()
}

// BlockingIssues returns failed or abandoned items whose error category means
// retrying will never succeed.
func (q *Queue) BlockingIssues() ([]*Item, error) {
	items, err := q.read()
	if err != nil {
		return nil, err
	}

	var blocking []*Item
	for _, item := range items {
		if isBlocking(item) {
			blocking = append(blocking, item)
		}
	}
	sortByPriority(blocking)
	return blocking, nil
}
