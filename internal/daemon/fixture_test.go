package daemon

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/monitor"
	"encodesync/internal/reconcile"
	"encodesync/internal/services/mediaconvert"
	"encodesync/internal/submit"
	"encodesync/internal/testsupport"
	"encodesync/internal/webhook"
)

type stubEncoder struct {
	mu        sync.Mutex
	submitted int
	cancelled []string
}

func (e *stubEncoder) SubmitJob(context.Context, mediaconvert.JobSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted++
	return fmt.Sprintf("job-%d", e.submitted), nil
}

func (e *stubEncoder) CancelJob(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, jobID)
	return nil
}

func (e *stubEncoder) GetJobStatus(context.Context, string) (mediaconvert.JobStatus, error) {
	return mediaconvert.JobStatus{Status: "PROGRESSING"}, nil
}

type missProbe struct{}

func (missProbe) Check(context.Context, *assets.Asset) (events.Event, bool, error) {
	return events.Event{}, false, nil
}

type fixture struct {
	cfg     *config.Config
	store   *assets.Store
	rec     *reconcile.Reconciler
	hub     *broadcast.Hub
	encoder *stubEncoder
	daemon  *Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Polling.InitialDelay = 3600
	require.NoError(t, cfg.EnsureDirectories())
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	hub := broadcast.NewHub()
	rec := reconcile.New(store, hub, cfg.CommitTimeout(), logger)
	encoder := &stubEncoder{}
	mon := monitor.New(cfg.PollSchedule(), monitor.Dependencies{
		Jobs:       encoder,
		Probe:      missProbe{},
		Reconciler: rec,
		Assets:     store,
	}, logger)
	rec.AddListener(mon)
	sub := submit.New(cfg, submit.Dependencies{
		Encoder:    encoder,
		Assets:     store,
		Reconciler: rec,
		Monitor:    mon,
	}, logger)

	d, err := New(cfg, Dependencies{
		Store:     store,
		Monitor:   mon,
		Submitter: sub,
		Hub:       hub,
		Webhook:   webhook.NewHandler(cfg.Webhook, rec, nil, nil, logger),
		Broadcast: "in-process",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(d.Stop)
	return &fixture{cfg: cfg, store: store, rec: rec, hub: hub, encoder: encoder, daemon: d}
}

func (f *fixture) apply(t *testing.T, event events.Event) {
	t.Helper()
	_, err := f.rec.Apply(context.Background(), event)
	require.NoError(t, err)
}
