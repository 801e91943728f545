package conflict

import (
	"math"
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
)

const (
	sameTimeWindow   = 5 * time.Minute
	extremeJumpRatio = 10
)

// MeterReadingPatch lists the meter reading fields a merge changes.
type MeterReadingPatch struct {
	ReadingValue Value[float64]
	ReadingDate  Value[int64]
	Notes        Value[*string]
	RecordedBy   Value[*string]
}

// Apply writes the set fields onto r.
func (p MeterReadingPatch) Apply(r *models.MeterReading) {
	p.ReadingValue.apply(&r.ReadingValue)
	p.ReadingDate.apply(&r.ReadingDate)
	p.Notes.apply(&r.Notes)
	p.RecordedBy.apply(&r.RecordedBy)
}

// Empty reports whether the patch changes nothing.
func (p MeterReadingPatch) Empty() bool {
	return !p.ReadingValue.Set && !p.ReadingDate.Set && !p.Notes.Set && !p.RecordedBy.Set
}

// ResolveMeterReading merges a remote meter reading into a pending local one.
//
// Two readings taken within a few minutes of each other with different values
// cannot be ordered, so the merge is left empty. Callers keep both readings as
// separate records in that case.
func ResolveMeterReading(local, remote *models.MeterReading) Result[MeterReadingPatch] {
	var result Result[MeterReadingPatch]
	if local == nil || remote == nil || !HasMeterReadingConflict(&local.SyncableRecord, &remote.SyncableRecord) {
		return result
	}
	result.HasConflict = true

	valuesDiffer := local.ReadingValue != remote.ReadingValue
	gap := time.Duration(absInt64(local.ReadingDate-remote.ReadingDate)) * time.Millisecond

	if valuesDiffer && gap <= sameTimeWindow {
		result.Escalations = append(result.Escalations, EscalationSameTimeDifferentValues)
	}
	if extremeJump(local.ReadingValue, remote.ReadingValue) {
		result.Escalations = append(result.Escalations, EscalationExtremeReadingJump)
	}
	if outOfOrder(local, remote) {
		result.Escalations = append(result.Escalations, EscalationOutOfOrderReading)
	}

	var res resolutions
	m := &result.Merged

	if valuesDiffer {
		resolved := math.Max(local.ReadingValue, remote.ReadingValue)
		res.add(FieldReadingValue, local.ReadingValue, remote.ReadingValue, resolved, RuleHigherWins)
		m.ReadingValue = set(resolved)
	}
	if local.ReadingDate != remote.ReadingDate {
		resolved := local.ReadingDate
		if remote.ReadingDate < resolved {
			resolved = remote.ReadingDate
		}
		res.add(FieldReadingDate, local.ReadingDate, remote.ReadingDate, resolved, RuleEarlierWins)
		m.ReadingDate = set(resolved)
	}
	if merged, ok := appendBoth(local.Notes, remote.Notes, "", ""); ok {
		res.add(FieldNotes, deref(local.Notes), deref(remote.Notes), deref(merged), RuleAppendBoth)
		m.Notes = set(merged)
	}
	latestPtr(&res, localIsLatest(&local.SyncableRecord, &remote.SyncableRecord),
		FieldRecordedBy, local.RecordedBy, remote.RecordedBy, &m.RecordedBy)

	if result.HasEscalation(EscalationSameTimeDifferentValues) {
		result.Merged = MeterReadingPatch{}
	}
	if result.Escalated() {
		res.markForReview()
	}
	result.Resolutions = res
	return result
}

// extremeJump reports whether the larger value is more than extremeJumpRatio
// times the smaller one. Any positive value measured against zero or a
// negative reading counts as extreme.
func extremeJump(a, b float64) bool {
	lo, hi := math.Min(a, b), math.Max(a, b)
	switch {
	case hi <= 0 || lo == hi:
		return false
	case lo <= 0:
		return true
	default:
		return hi/lo > extremeJumpRatio
	}
}

// outOfOrder reports whether the later reading is lower than the earlier one.
func outOfOrder(a, b *models.MeterReading) bool {
	switch {
	case a.ReadingDate > b.ReadingDate:
		return a.ReadingValue < b.ReadingValue
	case b.ReadingDate > a.ReadingDate:
		return b.ReadingValue < a.ReadingValue
	default:
		return false
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
