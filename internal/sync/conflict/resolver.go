// Package conflict resolves field-level conflicts between a pending local
// record and a newer remote version of it. Resolvers are pure: they never
// touch storage, and the remote record is the server row mapped into the local
// shape, with ServerUpdatedAt carrying the row's updated_at.
package conflict

import (
	"fmt"

	"github.com/kimhsiao/fieldsync/internal/models"
)

// Escalation triggers that stop a record from being auto-merged.
const (
	EscalationCompletionConflict      = "completion_conflict"
	EscalationBackdatedCompletion     = "backdated_completion"
	EscalationQuickCompletionNoNotes  = "quick_completion_no_notes"
	EscalationSignatureMismatch       = "signature_mismatch"
	EscalationSameTimeDifferentValues = "same_time_different_values"
	EscalationExtremeReadingJump      = "extreme_reading_jump"
	EscalationOutOfOrderReading       = "out_of_order_reading"
	EscalationQuickLogBacklog         = "quick_log_backlog"
)

// Separator joins appended text values.
const Separator = "\n---\n"

// Value is an optional patch entry. Only entries with Set are applied.
type Value[T any] struct {
	Set bool
	V   T
}

func set[T any](v T) Value[T] {
	return Value[T]{Set: true, V: v}
}

func (v Value[T]) apply(dst *T) {
	if v.Set {
		*dst = v.V
	}
}

// Result is the outcome of resolving one record pair.
type Result[P any] struct {
	HasConflict bool
	// Merged holds the field changes to apply on top of the local record.
	Merged      P
	Resolutions []models.ConflictResolution
	Escalations []string
}

// Escalated reports whether any trigger requires human review.
func (r Result[P]) Escalated() bool {
	return len(r.Escalations) > 0
}

// HasEscalation reports whether name is among the triggers.
func (r Result[P]) HasEscalation(name string) bool {
	for _, e := range r.Escalations {
		if e == name {
			return true
		}
	}
	return false
}

func remoteStamp(remote *models.SyncableRecord) (int64, bool) {
	if remote.ServerUpdatedAt == nil {
		return 0, false
	}
	return *remote.ServerUpdatedAt, true
}

// HasConflict reports whether a pending local record collides with a remote
// version newer than the last one it saw. A record that never synced collides
// with any remote version. Equal timestamps are not a conflict.
func HasConflict(local, remote *models.SyncableRecord) bool {
	if local == nil || remote == nil || local.LocalSyncStatus != models.SyncPending {
		return false
	}
	remoteAt, ok := remoteStamp(remote)
	if !ok {
		return false
	}
	if local.ServerUpdatedAt == nil {
		return true
	}
	return remoteAt > *local.ServerUpdatedAt
}

// HasMeterReadingConflict compares against the local edit time instead, since
// readings are append-only and rarely carry a server timestamp worth trusting.
func HasMeterReadingConflict(local, remote *models.SyncableRecord) bool {
	if local == nil || remote == nil || local.LocalSyncStatus != models.SyncPending {
		return false
	}
	remoteAt, ok := remoteStamp(remote)
	return ok && remoteAt > local.LocalUpdatedAt
}

// localIsLatest reports whether the local edit is at least as new as the remote row.
func localIsLatest(local, remote *models.SyncableRecord) bool {
	remoteAt, _ := remoteStamp(remote)
	return local.LocalUpdatedAt >= remoteAt
}

type resolutions []models.ConflictResolution

func (r *resolutions) add(field Field, local, remote, resolved interface{}, rule Rule) {
	*r = append(*r, models.ConflictResolution{
		FieldName:     string(field),
		LocalValue:    local,
		RemoteValue:   remote,
		ResolvedValue: resolved,
		Rule:          string(rule),
	})
}

func (r resolutions) markForReview() {
	for i := range r {
		r[i].RequiresReview = true
	}
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// appendBoth joins two optional texts. When only one side is set it is kept.
// ok is false when nothing needs resolving.
func appendBoth(local, remote *string, localLabel, remoteLabel string) (*string, bool) {
	if strPtrEqual(local, remote) {
		return nil, false
	}
	if local == nil {
		return remote, true
	}
	if remote == nil {
		return local, true
	}
	l, r := *local, *remote
	if localLabel != "" {
		l = fmt.Sprintf("[%s]\n%s", localLabel, l)
	}
	if remoteLabel != "" {
		r = fmt.Sprintf("[%s]\n%s", remoteLabel, r)
	}
	joined := l + Separator + r
	return &joined, true
}

// pickNonNil keeps whichever side is set when exactly one is.
func pickNonNil[T any](local, remote *T) (*T, bool) {
	switch {
	case local == nil && remote != nil:
		return remote, true
	case local != nil && remote == nil:
		return local, true
	default:
		return nil, false
	}
}
