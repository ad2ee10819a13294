// Package broadcast publishes asset status snapshots to live subscribers.
//
// Each asset has one channel named "<prefix><asset_id>" (status_<id> by
// default). The reconciler publishes while it still holds the asset lock so
// subscribers observe snapshots in commit order.
package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"encodesync/internal/assets"
)

// Broadcaster delivers snapshots to subscribers of an asset's channel.
type Broadcaster interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// Snapshot is the payload published on every committed transition.
type Snapshot struct {
	EventID         string          `json:"event_id"`
	AssetID         string          `json:"asset_id"`
	Status          assets.Status   `json:"status"`
	Progress        int             `json:"progress"`
	OutputLocations *assets.Outputs `json:"output_locations,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	DurationSeconds int             `json:"duration_seconds,omitempty"`
}

// SnapshotFromAsset captures the broadcast view of an asset.
func SnapshotFromAsset(asset *assets.Asset) Snapshot {
	snap := Snapshot{
		EventID:   uuid.NewString(),
		AssetID:   asset.ID,
		Status:    asset.Status,
		Progress:  asset.Progress,
		UpdatedAt: asset.UpdatedAt.UTC(),
	}
	if !asset.Outputs.IsEmpty() {
		outputs := asset.Outputs
		snap.OutputLocations = &outputs
	}
	if asset.Status == assets.StatusFailed {
		snap.FailureReason = asset.FailureReason
	}
	if asset.Status == assets.StatusReady {
		snap.DurationSeconds = asset.DurationSeconds
	}
	return snap
}

// Subject returns the channel name for an asset.
func Subject(prefix, assetID string) string {
	return prefix + assetID
}

// Nop discards snapshots.
type Nop struct{}

func (Nop) Publish(context.Context, Snapshot) error { return nil }

// Multi fans a snapshot out to several broadcasters, joining their errors.
type Multi []Broadcaster

func (m Multi) Publish(ctx context.Context, snapshot Snapshot) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
