package submit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/logging"
	"encodesync/internal/reconcile"
	"encodesync/internal/services"
	"encodesync/internal/services/mediaconvert"
	"encodesync/internal/submit"
	"encodesync/internal/testsupport"
)

type fakeEncoder struct {
	mu        sync.Mutex
	specs     []mediaconvert.JobSpec
	cancelled []string
	err       error
	onSubmit  func()
	next      int
	deadlines []time.Duration
}

func (f *fakeEncoder) recordDeadline(ctx context.Context) {
	remaining := time.Duration(-1)
	if deadline, ok := ctx.Deadline(); ok {
		remaining = time.Until(deadline)
	}
	f.deadlines = append(f.deadlines, remaining)
}

func (f *fakeEncoder) SubmitJob(ctx context.Context, spec mediaconvert.JobSpec) (string, error) {
	if f.onSubmit != nil {
		f.onSubmit()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx)
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return "", f.err
	}
	f.next++
	return fmt.Sprintf("job-%d", f.next), nil
}

func (f *fakeEncoder) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordDeadline(ctx)
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type armed struct {
	mu    sync.Mutex
	calls [][2]string
}

func (a *armed) Arm(assetID, jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, [2]string{assetID, jobID})
}

type fixture struct {
	store   *assets.Store
	rec     *reconcile.Reconciler
	encoder *fakeEncoder
	armed   *armed
	sub     *submit.Submitter
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	f := &fixture{
		store:   store,
		rec:     reconcile.New(store, nil, cfg.CommitTimeout(), logging.NewNop()),
		encoder: &fakeEncoder{},
		armed:   &armed{},
	}
	f.sub = submit.New(cfg, submit.Dependencies{
		Encoder:    f.encoder,
		Assets:     store,
		Reconciler: f.rec,
		Monitor:    f.armed,
	}, logging.NewNop())
	return f
}

func TestSubmitDraftAsset(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "A1")

	jobID, err := f.sub.Submit(context.Background(), "A1", "uploads/A1/Talk.MP4")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	asset := testsupport.MustGetAsset(t, f.store, "A1")
	assert.Equal(t, assets.StatusProcessing, asset.Status)
	assert.Equal(t, "job-1", asset.JobID)
	assert.Equal(t, 0, asset.Progress)
	assert.Equal(t, "uploads/A1/Talk.MP4", asset.SourceKey)

	require.Len(t, f.encoder.specs, 1)
	spec := f.encoder.specs[0]
	assert.Equal(t, "s3://uploads-test/uploads/A1/Talk.MP4", spec.InputURI())
	assert.Equal(t, "outputs-test", spec.OutputsBucket)
	assert.Regexp(t, `^encodesync-asset-A1-\d+$`, spec.JobName)
	assert.Equal(t, "https://hooks.example.com/webhooks/mediaconvert", spec.WebhookURL)
	assert.Equal(t, [][2]string{{"A1", "job-1"}}, f.armed.calls)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "v")
	testsupport.NewAsset(t, f.store, "busy", testsupport.Processing("job-0", "uploads/busy.mp4"))

	tests := []struct {
		name    string
		assetID string
		source  string
		marker  error
	}{
		{"missing asset id", " ", "uploads/a.mp4", services.ErrValidation},
		{"missing source key", "v", "", services.ErrValidation},
		{"unsupported container", "v", "uploads/a.gif", services.ErrValidation},
		{"no extension", "v", "uploads/a", services.ErrValidation},
		{"unknown asset", "ghost", "uploads/a.mp4", services.ErrNotFound},
		{"already processing", "busy", "uploads/a.mp4", services.ErrInvalidState},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.sub.Submit(context.Background(), tc.assetID, tc.source)
			require.ErrorIs(t, err, tc.marker)
		})
	}
	assert.Empty(t, f.encoder.specs)
	assert.Empty(t, f.armed.calls)
}

func TestSupportedExtension(t *testing.T) {
	for _, key := range []string{"a.mp4", "a.MOV", "dir/a.avi", "a.mkv", "a.webm", "a.m4v", "a.mxf", "a.gxf", "a.ts", "a.mts", "a.m2ts"} {
		assert.True(t, submit.SupportedExtension(key), key)
	}
	for _, key := range []string{"a.wav", "a.jpg", "a", "a.mp4.txt"} {
		assert.False(t, submit.SupportedExtension(key), key)
	}
}

func TestSubmitEncoderFailureLeavesAssetUnchanged(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "e")
	f.encoder.err = services.Wrap(services.ErrServiceUnavailable, "mediaconvert", "create job", "throttled", nil)

	_, err := f.sub.Submit(context.Background(), "e", "uploads/e.mp4")
	require.ErrorIs(t, err, services.ErrServiceUnavailable)

	asset := testsupport.MustGetAsset(t, f.store, "e")
	assert.Equal(t, assets.StatusDraft, asset.Status)
	assert.Empty(t, asset.JobID)
	assert.Empty(t, f.armed.calls)

	f.encoder.err = errors.New("socket closed")
	_, err = f.sub.Submit(context.Background(), "e", "uploads/e.mp4")
	require.ErrorIs(t, err, services.ErrServiceUnavailable)
}

func TestResubmitFailedAssetReusesSourceKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewAsset(t, f.store, "A2")

	first, err := f.sub.Submit(ctx, "A2", "uploads/A2/movie.mov")
	require.NoError(t, err)
	_, err = f.rec.Apply(ctx, errorEvent("A2", first, "codec unsupported"))
	require.NoError(t, err)
	require.Equal(t, assets.StatusFailed, testsupport.MustGetAsset(t, f.store, "A2").Status)

	second, err := f.sub.Submit(ctx, "A2", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	asset := testsupport.MustGetAsset(t, f.store, "A2")
	assert.Equal(t, assets.StatusProcessing, asset.Status)
	assert.Equal(t, second, asset.JobID)
	assert.Equal(t, 2, asset.Generation)
	assert.Empty(t, asset.FailureReason)
	assert.Equal(t, "uploads/A2/movie.mov", f.encoder.specs[1].SourceKey)
}

func TestConcurrentSubmissionCancelsOrphan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewAsset(t, f.store, "race")

	// Another submission wins while the encoder call is in flight.
	f.encoder.onSubmit = func() {
		f.encoder.onSubmit = nil
		_, err := f.rec.BeginAttempt(ctx, "race", "job-winner", "uploads/race.mp4")
		require.NoError(t, err)
	}

	_, err := f.sub.Submit(ctx, "race", "uploads/race.mp4")
	require.ErrorIs(t, err, services.ErrInvalidState)
	assert.Equal(t, []string{"job-1"}, f.encoder.cancelled)
	assert.Empty(t, f.armed.calls)
	assert.Equal(t, "job-winner", testsupport.MustGetAsset(t, f.store, "race").JobID)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	testsupport.NewAsset(t, f.store, "c", testsupport.Processing("job-c", "uploads/c.mp4"))
	testsupport.NewAsset(t, f.store, "d")

	jobID, err := f.sub.Cancel(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "job-c", jobID)
	assert.Equal(t, []string{"job-c"}, f.encoder.cancelled)
	assert.Equal(t, assets.StatusProcessing, testsupport.MustGetAsset(t, f.store, "c").Status)

	_, err = f.sub.Cancel(context.Background(), "d")
	require.ErrorIs(t, err, services.ErrInvalidState)
	_, err = f.sub.Cancel(context.Background(), "ghost")
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestEncoderCallsCarryRequestDeadline(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.AWS.RequestTimeout = 5 })
	testsupport.NewAsset(t, f.store, "A9")

	_, err := f.sub.Submit(context.Background(), "A9", "uploads/A9/clip.mov")
	require.NoError(t, err)
	_, err = f.sub.Cancel(context.Background(), "A9")
	require.NoError(t, err)

	require.Len(t, f.encoder.deadlines, 2)
	for i, remaining := range f.encoder.deadlines {
		assert.Greater(t, remaining, time.Duration(0), "call %d had no deadline", i)
		assert.LessOrEqual(t, remaining, 5*time.Second, "call %d", i)
	}
}
