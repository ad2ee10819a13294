package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/monitor"
	"encodesync/internal/reconcile"
	"encodesync/internal/services"
	"encodesync/internal/services/mediaconvert"
	"encodesync/internal/testsupport"
)

type scriptedJobs struct {
	mu      sync.Mutex
	script  []func() (mediaconvert.JobStatus, error)
	calls   int
	lastJob string
}

func (s *scriptedJobs) GetJobStatus(_ context.Context, jobID string) (mediaconvert.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastJob = jobID
	step := s.script[len(s.script)-1]
	if s.calls < len(s.script) {
		step = s.script[s.calls]
	}
	s.calls++
	return step()
}

func (s *scriptedJobs) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func status(value string, percent *int) func() (mediaconvert.JobStatus, error) {
	return func() (mediaconvert.JobStatus, error) {
		return mediaconvert.JobStatus{Status: value, PercentComplete: percent}, nil
	}
}

func failing(marker error) func() (mediaconvert.JobStatus, error) {
	return func() (mediaconvert.JobStatus, error) {
		return mediaconvert.JobStatus{}, services.Wrap(marker, "mediaconvert", "get job", "scripted", nil)
	}
}

func pct(v int) *int { return &v }

type stubProbe struct {
	mu    sync.Mutex
	found bool
	calls int
}

func (p *stubProbe) Check(_ context.Context, asset *assets.Asset) (events.Event, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if !p.found {
		return events.Event{}, false, nil
	}
	return events.Event{
		AssetID: asset.ID,
		JobID:   asset.JobID,
		Kind:    events.KindComplete,
		Outputs: assets.Outputs{Stream: "/hls/" + asset.ID + "/probe.m3u8"},
		Source:  events.SourceProbe,
	}, true, nil
}

func (p *stubProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type alerts struct {
	mu      sync.Mutex
	reasons []string
}

func (a *alerts) NotifyAttention(_ context.Context, _ *assets.Asset, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
	return nil
}

func (a *alerts) Reasons() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.reasons...)
}

type harness struct {
	store  *assets.Store
	rec    *reconcile.Reconciler
	mon    *monitor.Monitor
	jobs   *scriptedJobs
	probe  *stubProbe
	alerts *alerts
}

func fastSchedule(maxAttempts, notFoundLimit int) config.PollSchedule {
	return config.PollSchedule{
		InitialDelay:        2 * time.Millisecond,
		SubmittedInterval:   2 * time.Millisecond,
		ProgressingInterval: 2 * time.Millisecond,
		ErrorInterval:       2 * time.Millisecond,
		MaxAttempts:         maxAttempts,
		NotFoundLimit:       notFoundLimit,
		QueryTimeout:        time.Second,
	}
}

func newHarness(t *testing.T, schedule config.PollSchedule, script ...func() (mediaconvert.JobStatus, error)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := reconcile.New(store, nil, cfg.CommitTimeout(), logging.NewNop())
	h := &harness{
		store:  store,
		rec:    rec,
		jobs:   &scriptedJobs{script: script},
		probe:  &stubProbe{},
		alerts: &alerts{},
	}
	h.mon = monitor.New(schedule, monitor.Dependencies{
		Jobs:       h.jobs,
		Probe:      h.probe,
		Reconciler: rec,
		Assets:     store,
		Alerts:     h.alerts,
	}, logging.NewNop())
	rec.AddListener(h.mon)
	require.NoError(t, h.mon.Start(context.Background()))
	t.Cleanup(h.mon.Stop)
	return h
}

func (h *harness) waitUnwatched(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.mon.Watching()) == 0 }, 2*time.Second, 2*time.Millisecond)
}

func TestMonitorDrivesJobToReady(t *testing.T) {
	h := newHarness(t, fastSchedule(50, 3),
		status("SUBMITTED", nil),
		status("PROGRESSING", pct(40)),
		status("COMPLETE", nil),
	)
	testsupport.NewAsset(t, h.store, "a1", testsupport.Processing("job-1", "uploads/a1/talk.mp4"))

	h.mon.Arm("a1", "job-1")
	h.waitUnwatched(t)

	got := testsupport.MustGetAsset(t, h.store, "a1")
	assert.Equal(t, assets.StatusReady, got.Status)
	assert.Equal(t, "/hls/a1/talk.m3u8", got.Outputs.Stream)
	assert.Equal(t, "job-1", h.jobs.lastJob)

	calls := h.jobs.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.jobs.Calls(), "polling continued after terminal state")
}

func TestMonitorRetriesTransientErrors(t *testing.T) {
	h := newHarness(t, fastSchedule(50, 3),
		failing(services.ErrServiceUnavailable),
		failing(services.ErrTimeout),
		status("ERROR", nil),
	)
	testsupport.NewAsset(t, h.store, "a2", testsupport.Processing("job-2", "uploads/a2.mov"))

	h.mon.Arm("a2", "job-2")
	h.waitUnwatched(t)

	got := testsupport.MustGetAsset(t, h.store, "a2")
	assert.Equal(t, assets.StatusFailed, got.Status)
	assert.Equal(t, "encoding failed", got.FailureReason)
	assert.Equal(t, 3, h.jobs.Calls())
}

func TestMonitorNotFoundProbeHit(t *testing.T) {
	h := newHarness(t, fastSchedule(50, 3), failing(services.ErrNotFound))
	h.probe.found = true
	testsupport.NewAsset(t, h.store, "a3", testsupport.Processing("job-3", ""))

	h.mon.Arm("a3", "job-3")
	h.waitUnwatched(t)

	got := testsupport.MustGetAsset(t, h.store, "a3")
	assert.Equal(t, assets.StatusReady, got.Status)
	assert.Equal(t, "/hls/a3/probe.m3u8", got.Outputs.Stream)
	assert.Equal(t, 1, h.probe.Calls())
}

func TestMonitorFailsAfterNotFoundLimit(t *testing.T) {
	h := newHarness(t, fastSchedule(50, 3), failing(services.ErrNotFound))
	testsupport.NewAsset(t, h.store, "a4", testsupport.Processing("job-4", "uploads/a4.mp4"))

	h.mon.Arm("a4", "job-4")
	h.waitUnwatched(t)

	got := testsupport.MustGetAsset(t, h.store, "a4")
	assert.Equal(t, assets.StatusFailed, got.Status)
	assert.Equal(t, "encoding job job-4 not found and no output present", got.FailureReason)
	assert.Equal(t, 3, h.jobs.Calls())
	assert.Equal(t, 3, h.probe.Calls())
}

func TestMonitorExhaustionFlagsAttention(t *testing.T) {
	h := newHarness(t, fastSchedule(4, 3), status("PROGRESSING", pct(10)))
	testsupport.NewAsset(t, h.store, "a5", testsupport.Processing("job-5", "uploads/a5.mp4"))

	h.mon.Arm("a5", "job-5")
	h.waitUnwatched(t)

	got := testsupport.MustGetAsset(t, h.store, "a5")
	assert.Equal(t, assets.StatusProcessing, got.Status)
	assert.Equal(t, 10, got.Progress)
	assert.True(t, got.NeedsAttention)
	assert.Contains(t, got.AttentionReason, "4 attempts")
	assert.Equal(t, 4, h.jobs.Calls())
	assert.Equal(t, 1, h.probe.Calls())
	assert.Equal(t, []string{got.AttentionReason}, h.alerts.Reasons())
}

func TestMonitorDisarmsOnTerminalTransitionFromWebhook(t *testing.T) {
	schedule := fastSchedule(50, 3)
	schedule.InitialDelay = time.Hour
	h := newHarness(t, schedule, status("PROGRESSING", pct(1)))
	testsupport.NewAsset(t, h.store, "a6", testsupport.Processing("job-6", "uploads/a6.mp4"))

	h.mon.Arm("a6", "job-6")
	require.Len(t, h.mon.Watching(), 1)
	assert.False(t, h.mon.Watching()[0].NextCheck.IsZero())

	_, err := h.rec.Apply(context.Background(), events.Event{AssetID: "a6", JobID: "job-6", Kind: events.KindComplete, Source: events.SourceWebhook})
	require.NoError(t, err)
	assert.Empty(t, h.mon.Watching())
	assert.Equal(t, 0, h.jobs.Calls())
}

func TestMonitorRearmReplacesPreviousJob(t *testing.T) {
	schedule := fastSchedule(50, 3)
	schedule.InitialDelay = time.Hour
	h := newHarness(t, schedule, status("PROGRESSING", pct(1)))

	h.mon.Arm("a7", "job-old")
	h.mon.Arm("a7", "job-new")
	watches := h.mon.Watching()
	require.Len(t, watches, 1)
	assert.Equal(t, "job-new", watches[0].JobID)

	// A terminal transition for another job id leaves the new watch alone.
	h.mon.OnTransition(context.Background(), reconcile.Transition{
		Previous: assets.StatusProcessing,
		Asset:    &assets.Asset{ID: "a7", JobID: "job-old", Status: assets.StatusFailed},
	})
	require.Len(t, h.mon.Watching(), 1)

	assert.True(t, h.mon.Disarm("a7"))
	assert.False(t, h.mon.Disarm("a7"))
}

func TestMonitorResumeArmsProcessingAssets(t *testing.T) {
	schedule := fastSchedule(50, 3)
	schedule.InitialDelay = time.Hour
	h := newHarness(t, schedule, status("PROGRESSING", pct(1)))
	testsupport.NewAsset(t, h.store, "r1", testsupport.Processing("job-r1", "uploads/r1.mp4"))
	testsupport.NewAsset(t, h.store, "r2", testsupport.Processing("job-r2", "uploads/r2.mp4"))
	testsupport.NewAsset(t, h.store, "r3")

	count, err := h.mon.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	watches := h.mon.Watching()
	require.Len(t, watches, 2)
	assert.Equal(t, "r1", watches[0].AssetID)
	assert.Equal(t, "job-r2", watches[1].JobID)
}

func TestMonitorStartTwiceFails(t *testing.T) {
	h := newHarness(t, fastSchedule(50, 3), status("PROGRESSING", pct(1)))
	require.Error(t, h.mon.Start(context.Background()))
}
