package api

import (
	"time"

	"encodesync/internal/assets"
	"encodesync/internal/monitor"
)

// FromAsset converts an asset record to its API representation.
func FromAsset(asset *assets.Asset) Asset {
	if asset == nil {
		return Asset{}
	}
	dto := Asset{
		ID:              asset.ID,
		Title:           asset.DisplayTitle(),
		Status:          string(asset.Status),
		Progress:        asset.Progress,
		JobID:           asset.JobID,
		Generation:      asset.Generation,
		SourceKey:       asset.SourceKey,
		DurationSeconds: asset.DurationSeconds,
		FailureReason:   asset.FailureReason,
		NeedsAttention:  asset.NeedsAttention,
		AttentionReason: asset.AttentionReason,
		CreatedAt:       formatTime(asset.CreatedAt),
		UpdatedAt:       formatTime(asset.UpdatedAt),
	}
	if !asset.Outputs.IsEmpty() {
		dto.Outputs = &Outputs{
			Stream:    asset.Outputs.Stream,
			Thumbnail: asset.Outputs.Thumbnail,
			Preview:   asset.Outputs.Preview,
			Sprite:    asset.Outputs.Sprite,
		}
	}
	if asset.SubmittedAt != nil {
		dto.SubmittedAt = formatTime(*asset.SubmittedAt)
	}
	return dto
}

// FromAssets converts a slice of asset records into API DTOs.
func FromAssets(list []*assets.Asset) []Asset {
	out := make([]Asset, 0, len(list))
	for _, asset := range list {
		out = append(out, FromAsset(asset))
	}
	return out
}

// FromWatches converts monitor watches into API DTOs.
func FromWatches(watches []monitor.Watch) []Watch {
	out := make([]Watch, 0, len(watches))
	for _, w := range watches {
		out = append(out, Watch{
			AssetID:    w.AssetID,
			JobID:      w.JobID,
			Attempts:   w.Attempts,
			NotFound:   w.NotFound,
			LastStatus: w.LastStatus,
			ArmedAt:    formatTime(w.ArmedAt),
			NextCheck:  formatTime(w.NextCheck),
		})
	}
	return out
}

// StatusCounts flattens per-status counts, including zero entries for every
// lifecycle state.
func StatusCounts(stats map[assets.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range assets.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
