package conflict

// Field names a synced column that participates in conflict resolution.
type Field string

// Rule names a field resolution strategy, as recorded in the conflict log.
type Rule string

const (
	RuleCompletionWins       Rule = "completion_wins"
	RuleLaterStartWins       Rule = "later_start_wins"
	RuleFollowsStatus        Rule = "follows_status"
	RuleHigherPriorityWins   Rule = "higher_priority_wins"
	RuleAppendBoth           Rule = "append_both"
	RuleMaxWins              Rule = "max_wins"
	RuleEarlierWins          Rule = "earlier_wins"
	RuleSignedWins           Rule = "signed_wins"
	RuleEarlierSignatureWins Rule = "earlier_signature_wins"
	RuleKeepBoth             Rule = "keep_both"
	RuleFalseWins            Rule = "false_wins"
	RuleLatestWins           Rule = "latest_wins"
	RuleDownWinsSafety       Rule = "down_wins_safety"
	RuleHigherWins           Rule = "higher_wins"
)

// Work order fields.
const (
	FieldStatus          Field = "status"
	FieldStartedAt       Field = "started_at"
	FieldCompletedAt     Field = "completed_at"
	FieldCompletedBy     Field = "completed_by"
	FieldPriority        Field = "priority"
	FieldTitle           Field = "title"
	FieldDescription     Field = "description"
	FieldCompletionNotes Field = "completion_notes"
	FieldTimeSpent       Field = "time_spent_minutes"
	FieldDueDate         Field = "due_date"
	FieldSignature       Field = "signature"
	FieldVoiceNoteURL    Field = "voice_note_url"
	FieldNeedsEnrichment Field = "needs_enrichment"
	FieldAssignedTo      Field = "assigned_to"
	FieldFailureType     Field = "failure_type"
	FieldAssetID         Field = "asset_id"
	FieldVoiceConfidence Field = "voice_note_confidence"
)

// Asset fields.
const (
	FieldName                Field = "name"
	FieldAssetNumber         Field = "asset_number"
	FieldCategory            Field = "category"
	FieldLocation            Field = "location"
	FieldMeterType           Field = "meter_type"
	FieldMeterUnit           Field = "meter_unit"
	FieldMeterCurrentReading Field = "meter_current_reading"
)

// Meter reading fields.
const (
	FieldReadingValue Field = "reading_value"
	FieldReadingDate  Field = "reading_date"
	FieldNotes        Field = "notes"
	FieldRecordedBy   Field = "recorded_by"
)

// FieldCaption is the only photo field merged across devices.
const FieldCaption Field = "caption"

// WorkOrderRules maps every mergeable work order field to its primary rule.
var WorkOrderRules = map[Field]Rule{
	FieldStatus:          RuleCompletionWins,
	FieldStartedAt:       RuleLaterStartWins,
	FieldCompletedAt:     RuleFollowsStatus,
	FieldCompletedBy:     RuleFollowsStatus,
	FieldPriority:        RuleHigherPriorityWins,
	FieldTitle:           RuleLatestWins,
	FieldDescription:     RuleAppendBoth,
	FieldCompletionNotes: RuleAppendBoth,
	FieldTimeSpent:       RuleMaxWins,
	FieldDueDate:         RuleEarlierWins,
	FieldSignature:       RuleSignedWins,
	FieldVoiceNoteURL:    RuleKeepBoth,
	FieldVoiceConfidence: RuleFollowsStatus,
	FieldNeedsEnrichment: RuleFalseWins,
	FieldAssignedTo:      RuleLatestWins,
	FieldFailureType:     RuleLatestWins,
	FieldAssetID:         RuleLatestWins,
}

// AssetRules maps every mergeable asset field to its rule.
var AssetRules = map[Field]Rule{
	FieldStatus:              RuleDownWinsSafety,
	FieldMeterCurrentReading: RuleHigherWins,
	FieldDescription:         RuleAppendBoth,
	FieldName:                RuleLatestWins,
	FieldAssetNumber:         RuleLatestWins,
	FieldCategory:            RuleLatestWins,
	FieldLocation:            RuleLatestWins,
	FieldMeterType:           RuleLatestWins,
	FieldMeterUnit:           RuleLatestWins,
}

// MeterReadingRules maps every mergeable meter reading field to its rule.
var MeterReadingRules = map[Field]Rule{
	FieldReadingValue: RuleHigherWins,
	FieldReadingDate:  RuleEarlierWins,
	FieldNotes:        RuleAppendBoth,
	FieldRecordedBy:   RuleLatestWins,
}
