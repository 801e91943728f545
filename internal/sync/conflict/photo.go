package conflict

import "github.com/kimhsiao/fieldsync/internal/models"

// PhotoSource tells where a merged photo came from.
type PhotoSource string

const (
	SourceLocal  PhotoSource = "local"
	SourceRemote PhotoSource = "remote"
	SourceMerged PhotoSource = "merged"
)

// MergedPhoto is one entry of a photo union.
type MergedPhoto struct {
	Photo  models.WorkOrderPhoto
	Source PhotoSource
}

// CaptionMerge records a caption that was combined from both sides.
type CaptionMerge struct {
	PhotoID       string `json:"photo_id"`
	LocalCaption  string `json:"local_caption"`
	RemoteCaption string `json:"remote_caption"`
}

// PhotoMergeResult is the union of two photo sets.
type PhotoMergeResult struct {
	Photos            []MergedPhoto
	CaptionMergeCount int
	MergedCaptions    []CaptionMerge
}

// MergePhotos unions local and remote photo sets. Photos pair up by server id,
// or by remote URL when no id matches. Nothing is ever dropped: unmatched
// photos are kept from their own side and differing captions are concatenated.
func MergePhotos(local, remote []models.WorkOrderPhoto) PhotoMergeResult {
	var result PhotoMergeResult
	used := make([]bool, len(remote))

	for _, lp := range local {
		idx := matchPhoto(lp, remote, used)
		if idx < 0 {
			result.Photos = append(result.Photos, MergedPhoto{Photo: lp, Source: SourceLocal})
			continue
		}
		used[idx] = true
		rp := remote[idx]

		if strPtrEqual(lp.Caption, rp.Caption) {
			result.Photos = append(result.Photos, MergedPhoto{Photo: lp, Source: SourceLocal})
			continue
		}

		merged := lp
		caption, _ := appendBoth(lp.Caption, rp.Caption, "", "")
		merged.Caption = caption
		if merged.RemoteURL == nil {
			merged.RemoteURL = rp.RemoteURL
		}
		result.Photos = append(result.Photos, MergedPhoto{Photo: merged, Source: SourceMerged})
		result.CaptionMergeCount++
		result.MergedCaptions = append(result.MergedCaptions, CaptionMerge{
			PhotoID:       lp.ID,
			LocalCaption:  models.Deref(lp.Caption),
			RemoteCaption: models.Deref(rp.Caption),
		})
	}

	for i, rp := range remote {
		if !used[i] {
			result.Photos = append(result.Photos, MergedPhoto{Photo: rp, Source: SourceRemote})
		}
	}
	return result
}

func matchPhoto(lp models.WorkOrderPhoto, remote []models.WorkOrderPhoto, used []bool) int {
	if lp.HasServerID() {
		for i, rp := range remote {
			if used[i] {
				continue
			}
			if (rp.ServerID != nil && *rp.ServerID == *lp.ServerID) || rp.ID == *lp.ServerID {
				return i
			}
		}
	}
	if lp.RemoteURL != nil && *lp.RemoteURL != "" {
		for i, rp := range remote {
			if !used[i] && rp.RemoteURL != nil && *rp.RemoteURL == *lp.RemoteURL {
				return i
			}
		}
	}
	return -1
}
