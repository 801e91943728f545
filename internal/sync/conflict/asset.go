package conflict

import "github.com/kimhsiao/fieldsync/internal/models"

// AssetPatch lists the asset fields a merge changes.
type AssetPatch struct {
	Status              Value[models.AssetStatus]
	MeterCurrentReading Value[*float64]
	Description         Value[*string]
	Name                Value[string]
	AssetNumber         Value[string]
	Category            Value[*string]
	Location            Value[*string]
	MeterType           Value[*string]
	MeterUnit           Value[*string]
}

// Apply writes the set fields onto a.
func (p AssetPatch) Apply(a *models.Asset) {
	p.Status.apply(&a.Status)
	p.MeterCurrentReading.apply(&a.MeterCurrentReading)
	p.Description.apply(&a.Description)
	p.Name.apply(&a.Name)
	p.AssetNumber.apply(&a.AssetNumber)
	p.Category.apply(&a.Category)
	p.Location.apply(&a.Location)
	p.MeterType.apply(&a.MeterType)
	p.MeterUnit.apply(&a.MeterUnit)
}

// ResolveAsset merges a remote asset into a pending local one. Assets never
// escalate: the more severe status always wins.
func ResolveAsset(local, remote *models.Asset) Result[AssetPatch] {
	var result Result[AssetPatch]
	if local == nil || remote == nil || !HasConflict(&local.SyncableRecord, &remote.SyncableRecord) {
		return result
	}
	result.HasConflict = true

	var res resolutions
	m := &result.Merged
	latestLocal := localIsLatest(&local.SyncableRecord, &remote.SyncableRecord)

	if local.Status != remote.Status {
		winner := local.Status
		if remote.Status.Severity() > local.Status.Severity() {
			winner = remote.Status
		}
		m.Status = set(winner)
		res.add(FieldStatus, local.Status, remote.Status, winner, RuleDownWinsSafety)
	}

	if !ptrEqual(local.MeterCurrentReading, remote.MeterCurrentReading) {
		resolved, ok := pickNonNil(local.MeterCurrentReading, remote.MeterCurrentReading)
		if !ok {
			resolved = local.MeterCurrentReading
			if *remote.MeterCurrentReading > *local.MeterCurrentReading {
				resolved = remote.MeterCurrentReading
			}
		}
		m.MeterCurrentReading = set(resolved)
		res.add(FieldMeterCurrentReading, deref(local.MeterCurrentReading), deref(remote.MeterCurrentReading), deref(resolved), RuleHigherWins)
	}

	if merged, ok := appendBoth(local.Description, remote.Description, "", ""); ok {
		m.Description = set(merged)
		res.add(FieldDescription, deref(local.Description), deref(remote.Description), deref(merged), RuleAppendBoth)
	}

	if local.Name != remote.Name {
		m.Name = set(latestOf(latestLocal, local.Name, remote.Name))
		res.add(FieldName, local.Name, remote.Name, m.Name.V, RuleLatestWins)
	}
	if local.AssetNumber != remote.AssetNumber {
		m.AssetNumber = set(latestOf(latestLocal, local.AssetNumber, remote.AssetNumber))
		res.add(FieldAssetNumber, local.AssetNumber, remote.AssetNumber, m.AssetNumber.V, RuleLatestWins)
	}
	latestPtr(&res, latestLocal, FieldCategory, local.Category, remote.Category, &m.Category)
	latestPtr(&res, latestLocal, FieldLocation, local.Location, remote.Location, &m.Location)
	latestPtr(&res, latestLocal, FieldMeterType, local.MeterType, remote.MeterType, &m.MeterType)
	latestPtr(&res, latestLocal, FieldMeterUnit, local.MeterUnit, remote.MeterUnit, &m.MeterUnit)

	result.Resolutions = res
	return result
}
