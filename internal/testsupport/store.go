package testsupport

import (
	"context"
	"testing"

	"encodesync/internal/assets"
	"encodesync/internal/config"
)

// MustOpenStore opens an assets.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *assets.Store {
	t.Helper()

	store, err := assets.Open(cfg)
	if err != nil {
		t.Fatalf("assets.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAsset inserts an asset for tests. Mutators run before insertion.
func NewAsset(t testing.TB, store *assets.Store, id string, mutate ...func(*assets.Asset)) *assets.Asset {
	t.Helper()

	asset := &assets.Asset{ID: id, Title: "Asset " + id, Status: assets.StatusDraft}
	for _, fn := range mutate {
		fn(asset)
	}
	created, err := store.Create(context.Background(), asset)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}

// Processing marks an asset as mid-encode with the given job id.
func Processing(jobID, sourceKey string) func(*assets.Asset) {
	return func(a *assets.Asset) {
		a.Status = assets.StatusProcessing
		a.JobID = jobID
		a.Generation = 1
		a.SourceKey = sourceKey
	}
}

// MustGetAsset reloads an asset and fails the test when it is missing.
func MustGetAsset(t testing.TB, store *assets.Store, id string) *assets.Asset {
	t.Helper()

	asset, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if asset == nil {
		t.Fatalf("asset %q not found", id)
	}
	return asset
}
