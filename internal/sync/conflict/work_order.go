package conflict

import (
	"time"

	"github.com/kimhsiao/fieldsync/internal/models"
)

const (
	backdateWindow     = 24 * time.Hour
	quickCompletionMin = 5
)

// WorkOrderPatch lists the work order fields a merge changes.
type WorkOrderPatch struct {
	Status              Value[models.WorkOrderStatus]
	StartedAt           Value[*int64]
	CompletedAt         Value[*int64]
	CompletedBy         Value[*string]
	Priority            Value[models.Priority]
	Title               Value[string]
	Description         Value[*string]
	CompletionNotes     Value[*string]
	TimeSpentMinutes    Value[*int]
	DueDate             Value[*int64]
	Signature           Value[*models.Signature]
	VoiceNoteURL        Value[*string]
	VoiceNoteConfidence Value[*float64]
	NeedsEnrichment     Value[bool]
	AssignedTo          Value[*string]
	FailureType         Value[*string]
	AssetID             Value[*string]
}

// Apply writes the set fields onto wo.
func (p WorkOrderPatch) Apply(wo *models.WorkOrder) {
	p.Status.apply(&wo.Status)
	p.StartedAt.apply(&wo.StartedAt)
	p.CompletedAt.apply(&wo.CompletedAt)
	p.CompletedBy.apply(&wo.CompletedBy)
	p.Priority.apply(&wo.Priority)
	p.Title.apply(&wo.Title)
	p.Description.apply(&wo.Description)
	p.CompletionNotes.apply(&wo.CompletionNotes)
	p.TimeSpentMinutes.apply(&wo.TimeSpentMinutes)
	p.DueDate.apply(&wo.DueDate)
	p.Signature.apply(&wo.Signature)
	p.VoiceNoteURL.apply(&wo.VoiceNoteURL)
	p.VoiceNoteConfidence.apply(&wo.VoiceNoteConfidence)
	p.NeedsEnrichment.apply(&wo.NeedsEnrichment)
	p.AssignedTo.apply(&wo.AssignedTo)
	p.FailureType.apply(&wo.FailureType)
	p.AssetID.apply(&wo.AssetID)
}

// ResolveWorkOrder merges a remote work order into a pending local one.
// syncTime anchors the backdated completion check.
func ResolveWorkOrder(local, remote *models.WorkOrder, syncTime time.Time) Result[WorkOrderPatch] {
	var result Result[WorkOrderPatch]
	if local == nil || remote == nil || !HasConflict(&local.SyncableRecord, &remote.SyncableRecord) {
		return result
	}
	result.HasConflict = true

	var res resolutions
	m := &result.Merged
	latestLocal := localIsLatest(&local.SyncableRecord, &remote.SyncableRecord)

	// Status and the completion fields that travel with it.
	if local.Status != remote.Status {
		winner, rule := local, RuleCompletionWins
		switch {
		case local.IsCompleted():
		case remote.IsCompleted():
			winner = remote
		default:
			rule = RuleLatestWins
			if !latestLocal {
				winner = remote
			}
		}
		m.Status = set(winner.Status)
		res.add(FieldStatus, local.Status, remote.Status, winner.Status, rule)

		if !ptrEqual(local.CompletedAt, remote.CompletedAt) {
			m.CompletedAt = set(winner.CompletedAt)
			res.add(FieldCompletedAt, deref(local.CompletedAt), deref(remote.CompletedAt), deref(winner.CompletedAt), RuleFollowsStatus)
		}
		if !strPtrEqual(local.CompletedBy, remote.CompletedBy) {
			m.CompletedBy = set(winner.CompletedBy)
			res.add(FieldCompletedBy, deref(local.CompletedBy), deref(remote.CompletedBy), deref(winner.CompletedBy), RuleFollowsStatus)
		}
	}

	if !ptrEqual(local.StartedAt, remote.StartedAt) {
		resolved, ok := pickNonNil(local.StartedAt, remote.StartedAt)
		if !ok {
			resolved = local.StartedAt
			if *remote.StartedAt > *local.StartedAt {
				resolved = remote.StartedAt
			}
		}
		m.StartedAt = set(resolved)
		res.add(FieldStartedAt, deref(local.StartedAt), deref(remote.StartedAt), deref(resolved), RuleLaterStartWins)
	}

	if local.Priority != remote.Priority {
		winner := local.Priority
		if remote.Priority.Rank() > local.Priority.Rank() {
			winner = remote.Priority
		}
		m.Priority = set(winner)
		res.add(FieldPriority, local.Priority, remote.Priority, winner, RuleHigherPriorityWins)
	}

	if merged, ok := appendBoth(local.Description, remote.Description, "", ""); ok {
		m.Description = set(merged)
		res.add(FieldDescription, deref(local.Description), deref(remote.Description), deref(merged), RuleAppendBoth)
	}

	if merged, ok := appendBoth(local.CompletionNotes, remote.CompletionNotes,
		"Local - "+completedByOrUnknown(local), "Remote - "+completedByOrUnknown(remote)); ok {
		m.CompletionNotes = set(merged)
		res.add(FieldCompletionNotes, deref(local.CompletionNotes), deref(remote.CompletionNotes), deref(merged), RuleAppendBoth)
	}

	if !ptrEqual(local.TimeSpentMinutes, remote.TimeSpentMinutes) {
		resolved, ok := pickNonNil(local.TimeSpentMinutes, remote.TimeSpentMinutes)
		if !ok {
			resolved = local.TimeSpentMinutes
			if *remote.TimeSpentMinutes > *local.TimeSpentMinutes {
				resolved = remote.TimeSpentMinutes
			}
		}
		m.TimeSpentMinutes = set(resolved)
		res.add(FieldTimeSpent, deref(local.TimeSpentMinutes), deref(remote.TimeSpentMinutes), deref(resolved), RuleMaxWins)
	}

	if !ptrEqual(local.DueDate, remote.DueDate) {
		resolved, ok := pickNonNil(local.DueDate, remote.DueDate)
		if !ok {
			resolved = local.DueDate
			if *remote.DueDate < *local.DueDate {
				resolved = remote.DueDate
			}
		}
		m.DueDate = set(resolved)
		res.add(FieldDueDate, deref(local.DueDate), deref(remote.DueDate), deref(resolved), RuleEarlierWins)
	}

	if !ptrEqual(local.Signature, remote.Signature) {
		resolved, ok := pickNonNil(local.Signature, remote.Signature)
		rule := RuleSignedWins
		if !ok {
			rule = RuleEarlierSignatureWins
			resolved = local.Signature
			if remote.Signature.Timestamp < local.Signature.Timestamp {
				resolved = remote.Signature
			}
		}
		m.Signature = set(resolved)
		res.add(FieldSignature, deref(local.Signature), deref(remote.Signature), deref(resolved), rule)
	}

	if !strPtrEqual(local.VoiceNoteURL, remote.VoiceNoteURL) {
		resolved, ok := pickNonNil(local.VoiceNoteURL, remote.VoiceNoteURL)
		if !ok {
			resolved = models.String(*local.VoiceNoteURL + "|" + *remote.VoiceNoteURL)
		}
		m.VoiceNoteURL = set(resolved)
		res.add(FieldVoiceNoteURL, deref(local.VoiceNoteURL), deref(remote.VoiceNoteURL), deref(resolved), RuleKeepBoth)
	}

	if local.NeedsEnrichment != remote.NeedsEnrichment {
		m.NeedsEnrichment = set(false)
		res.add(FieldNeedsEnrichment, local.NeedsEnrichment, remote.NeedsEnrichment, false, RuleFalseWins)
	}

	if local.Title != remote.Title {
		m.Title = set(latestOf(latestLocal, local.Title, remote.Title))
		res.add(FieldTitle, local.Title, remote.Title, m.Title.V, RuleLatestWins)
	}
	latestPtr(&res, latestLocal, FieldAssignedTo, local.AssignedTo, remote.AssignedTo, &m.AssignedTo)
	latestPtr(&res, latestLocal, FieldFailureType, local.FailureType, remote.FailureType, &m.FailureType)
	latestPtr(&res, latestLocal, FieldAssetID, local.AssetID, remote.AssetID, &m.AssetID)
	if !ptrEqual(local.VoiceNoteConfidence, remote.VoiceNoteConfidence) {
		resolved := latestOf(latestLocal, local.VoiceNoteConfidence, remote.VoiceNoteConfidence)
		m.VoiceNoteConfidence = set(resolved)
		res.add(FieldVoiceConfidence, deref(local.VoiceNoteConfidence), deref(remote.VoiceNoteConfidence), deref(resolved), RuleLatestWins)
	}

	result.Escalations = workOrderEscalations(local, remote, syncTime)
	if len(result.Escalations) > 0 {
		res.markForReview()
	}
	result.Resolutions = res
	return result
}

func workOrderEscalations(local, remote *models.WorkOrder, syncTime time.Time) []string {
	var out []string

	if local.IsCompleted() && remote.IsCompleted() &&
		local.CompletedBy != nil && remote.CompletedBy != nil && *local.CompletedBy != *remote.CompletedBy {
		out = append(out, EscalationCompletionConflict)
	}

	if local.IsCompleted() && local.CompletedAt != nil &&
		syncTime.Sub(time.UnixMilli(*local.CompletedAt)) > backdateWindow {
		out = append(out, EscalationBackdatedCompletion)
	}

	if local.IsCompleted() && local.TimeSpentMinutes != nil && *local.TimeSpentMinutes < quickCompletionMin &&
		(local.CompletionNotes == nil || *local.CompletionNotes == "") {
		out = append(out, EscalationQuickCompletionNoNotes)
	}

	if local.Signature != nil && remote.Signature != nil &&
		!strPtrEqual(local.CompletedBy, remote.CompletedBy) {
		out = append(out, EscalationSignatureMismatch)
	}

	return out
}

func completedByOrUnknown(wo *models.WorkOrder) string {
	if wo.CompletedBy == nil || *wo.CompletedBy == "" {
		return "unknown"
	}
	return *wo.CompletedBy
}

func latestOf[T any](localWins bool, local, remote T) T {
	if localWins {
		return local
	}
	return remote
}

func latestPtr(res *resolutions, localWins bool, field Field, local, remote *string, dst *Value[*string]) {
	if strPtrEqual(local, remote) {
		return
	}
	resolved := latestOf(localWins, local, remote)
	*dst = set(resolved)
	res.add(field, deref(local), deref(remote), deref(resolved), RuleLatestWins)
}
