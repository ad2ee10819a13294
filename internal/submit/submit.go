// Package submit starts encoding jobs for draft or failed assets.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/logging"
	"encodesync/internal/services"
	"encodesync/internal/services/mediaconvert"
)

var supportedExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {}, ".m4v": {},
	".mxf": {}, ".gxf": {}, ".ts": {}, ".mts": {}, ".m2ts": {},
}

// SupportedExtension reports whether the source container can be submitted.
func SupportedExtension(sourceKey string) bool {
	_, ok := supportedExtensions[strings.ToLower(path.Ext(sourceKey))]
	return ok
}

// Encoder creates and cancels encoder jobs.
type Encoder interface {
	SubmitJob(ctx context.Context, spec mediaconvert.JobSpec) (string, error)
	CancelJob(ctx context.Context, jobID string) error
}

// AssetReader loads asset records.
type AssetReader interface {
	Get(ctx context.Context, id string) (*assets.Asset, error)
}

// AttemptRecorder records an accepted submission on the asset.
type AttemptRecorder interface {
	BeginAttempt(ctx context.Context, assetID, jobID, sourceKey string) (*assets.Asset, error)
}

// Watcher starts polling a job.
type Watcher interface {
	Arm(assetID, jobID string)
}

// Dependencies wires a Submitter.
type Dependencies struct {
	Encoder    Encoder
	Assets     AssetReader
	Reconciler AttemptRecorder
	Monitor    Watcher
}

// Submitter validates a request, creates the encoder job and records it.
type Submitter struct {
	deps          Dependencies
	uploadsBucket string
	outputsBucket string
	webhookURL    string
	jobPrefix     string
	timeout       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New constructs a Submitter from configuration.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Submitter {
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Submitter{
		deps:          deps,
		uploadsBucket: cfg.Storage.UploadsBucket,
		outputsBucket: cfg.Storage.OutputsBucket,
		webhookURL:    cfg.WebhookURL(),
		jobPrefix:     cfg.AWS.JobNamePrefix,
		timeout:       timeout,
		logger:        logging.NewComponentLogger(logger, "submitter"),
		now:           time.Now,
	}
}

// Submit starts an encoding job and returns its id. An empty sourceKey
// reuses the key recorded by a previous attempt.
func (s *Submitter) Submit(ctx context.Context, assetID, sourceKey string) (string, error) {
	assetID = strings.TrimSpace(assetID)
	sourceKey = strings.TrimSpace(sourceKey)
	if assetID == "" {
		return "", services.Wrap(services.ErrValidation, "submitter", "submit", "asset id is required", nil)
	}
	ctx = services.WithAssetID(ctx, assetID)
	logger := logging.WithContext(ctx, s.logger)

	asset, err := s.deps.Assets.Get(ctx, assetID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "submitter", "load asset", assetID, err)
	}
	if asset == nil {
		return "", services.Wrap(services.ErrNotFound, "submitter", "submit", fmt.Sprintf("asset %q not found", assetID), nil)
	}
	if sourceKey == "" {
		sourceKey = asset.SourceKey
	}
	if sourceKey == "" {
		return "", services.Wrap(services.ErrValidation, "submitter", "submit", "source key is required", nil)
	}
	if !SupportedExtension(sourceKey) {
		return "", services.Wrap(services.ErrValidation, "submitter", "submit",
			fmt.Sprintf("unsupported container %q", path.Ext(sourceKey)), nil)
	}
	if !asset.Status.Submittable() {
		return "", services.Wrap(services.ErrInvalidState, "submitter", "submit",
			fmt.Sprintf("asset %q is %s", assetID, asset.Status), nil)
	}

	spec := mediaconvert.JobSpec{
		AssetID:       assetID,
		SourceKey:     sourceKey,
		UploadsBucket: s.uploadsBucket,
		OutputsBucket: s.outputsBucket,
		WebhookURL:    s.webhookURL,
		JobName:       mediaconvert.JobName(s.jobPrefix, assetID, s.now()),
	}
	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	jobID, err := s.deps.Encoder.SubmitJob(submitCtx, spec)
	cancel()
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return "", err
		}
		logging.WarnWithContext(logger, "encoder rejected submission", "submit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check MediaConvert role, queue and endpoint"),
			logging.String(logging.FieldImpact, "asset unchanged; retry the submission"),
		)
		return "", services.Wrap(services.ErrServiceUnavailable, "submitter", "create job", assetID, err)
	}
	ctx = services.WithJobID(ctx, jobID)

	if _, err := s.deps.Reconciler.BeginAttempt(ctx, assetID, jobID, sourceKey); err != nil {
		s.cancelOrphan(ctx, jobID, err)
		return "", err
	}
	if s.deps.Monitor != nil {
		s.deps.Monitor.Arm(assetID, jobID)
	}
	logging.WithContext(ctx, s.logger).Info("asset submitted",
		logging.String("source_key", sourceKey),
		logging.String("job_name", spec.JobName),
	)
	return jobID, nil
}

// Cancel asks the encoder to cancel the asset's current job. The resulting
// CANCELED signal reaches the asset through the normal webhook and poll path.
func (s *Submitter) Cancel(ctx context.Context, assetID string) (string, error) {
	asset, err := s.deps.Assets.Get(ctx, assetID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "submitter", "load asset", assetID, err)
	}
	if asset == nil {
		return "", services.Wrap(services.ErrNotFound, "submitter", "cancel", fmt.Sprintf("asset %q not found", assetID), nil)
	}
	if asset.Status != assets.StatusProcessing || asset.JobID == "" {
		return "", services.Wrap(services.ErrInvalidState, "submitter", "cancel",
			fmt.Sprintf("asset %q is %s", assetID, asset.Status), nil)
	}
	cancelCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.deps.Encoder.CancelJob(cancelCtx, asset.JobID); err != nil {
		return "", err
	}
	return asset.JobID, nil
}

func (s *Submitter) cancelOrphan(ctx context.Context, jobID string, cause error) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	err := s.deps.Encoder.CancelJob(cancelCtx, jobID)
	attrs := []logging.Attr{
		logging.String("reason", cause.Error()),
		logging.String(logging.FieldImpact, "the concurrent submission keeps the asset"),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err), logging.String(logging.FieldErrorHint, "cancel the job manually in MediaConvert"))
	}
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "orphaned encoder job cancelled", "submit_orphan_cancelled", attrs...)
}
