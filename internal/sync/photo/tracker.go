// Package photo moves photo files between the device and blob storage. Photo
// rows sync through the engine like any other table; only the bytes move here.
package photo

import (
	"sort"
	"sync"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/sync/backoff"
)

const (
	// TrackerKey is the key-value entry holding failed uploads.
	TrackerKey = "photo_upload_queue"
	// MaxUploadAttempts is how often an upload is tried before giving up.
	MaxUploadAttempts = 5
)

// Upload is a photo whose file upload has failed at least once.
type Upload struct {
	PhotoID       string `json:"photo_id"`
	WorkOrderID   string `json:"work_order_id"`
	Attempts      int    `json:"attempts"`
	LastAttemptAt int64  `json:"last_attempt_at"`
	LastError     string `json:"last_error,omitempty"`
	Abandoned     bool   `json:"abandoned"`
}

// Tracker persists failed uploads so retries survive restarts.
type Tracker struct {
	mu      sync.Mutex
	store   kv.Store
	backoff *backoff.Calculator
	clock   clock.Clock
}

// NewTracker creates a Tracker over store.
func NewTracker(store kv.Store, b *backoff.Calculator, c clock.Clock) *Tracker {
	return &Tracker{store: store, backoff: b, clock: c}
}

func (t *Tracker) load() (map[string]*Upload, error) {
	uploads := make(map[string]*Upload)
	if _, err := kv.GetJSON(t.store, TrackerKey, &uploads); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreRead, "load upload tracker", err)
	}
	return uploads, nil
}

func (t *Tracker) save(uploads map[string]*Upload) error {
	if err := kv.SetJSON(t.store, TrackerKey, uploads); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreSave, "save upload tracker", err)
	}
	return nil
}

// RecordFailure counts a failed attempt. The upload is abandoned once it
// reaches MaxUploadAttempts.
func (t *Tracker) RecordFailure(photoID, workOrderID string, cause error) (*Upload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uploads, err := t.load()
	if err != nil {
		return nil, err
	}
	u, ok := uploads[photoID]
	if !ok {
		u = &Upload{PhotoID: photoID, WorkOrderID: workOrderID}
		uploads[photoID] = u
	}
	u.Attempts++
	u.LastAttemptAt = t.clock.Now().UnixMilli()
	if cause != nil {
		u.LastError = cause.Error()
	}
	u.Abandoned = u.Attempts >= MaxUploadAttempts
	copied := *u
	return &copied, t.save(uploads)
}

// Remove forgets an upload, typically after it succeeded.
func (t *Tracker) Remove(photoID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	uploads, err := t.load()
	if err != nil {
		return err
	}
	if _, ok := uploads[photoID]; !ok {
		return nil
	}
	delete(uploads, photoID)
	return t.save(uploads)
}

// Get returns the tracked upload for photoID.
func (t *Tracker) Get(photoID string) (*Upload, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uploads, err := t.load()
	if err != nil {
		return nil, false, err
	}
	u, ok := uploads[photoID]
	return u, ok, nil
}

// List returns every tracked upload ordered by photo id.
func (t *Tracker) List() ([]Upload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uploads, err := t.load()
	if err != nil {
		return nil, err
	}
	out := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhotoID < out[j].PhotoID })
	return out, nil
}

// Ready returns uploads that are not abandoned and whose backoff has elapsed.
func (t *Tracker) Ready() ([]Upload, error) {
	all, err := t.List()
	if err != nil {
		return nil, err
	}
	var out []Upload
	for _, u := range all {
		if !u.Abandoned && t.backoff.IsReadyForRetry(u.LastAttemptAt, u.Attempts) {
			out = append(out, u)
		}
	}
	return out, nil
}

// TrackerStats summarizes the tracker.
type TrackerStats struct {
	Waiting   int `json:"waiting"`
	Abandoned int `json:"abandoned"`
}

// Stats counts waiting and abandoned uploads.
func (t *Tracker) Stats() (TrackerStats, error) {
	all, err := t.List()
	if err != nil {
		return TrackerStats{}, err
	}
	var s TrackerStats
	for _, u := range all {
		if u.Abandoned {
			s.Abandoned++
		} else {
			s.Waiting++
		}
	}
	return s, nil
}
