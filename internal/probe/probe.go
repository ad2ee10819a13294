// Package probe looks for finished encoder output directly in the outputs
// bucket when neither the webhook nor polling can say whether a job finished.
package probe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"encodesync/internal/artifacts"
	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/services"
)

// ListAPI is the S3 listing call the probe needs.
type ListAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Probe lists the HLS prefix of an asset looking for a playlist.
type Probe struct {
	api     ListAPI
	bucket  string
	maxKeys int32
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a probe over the configured outputs bucket.
func New(api ListAPI, cfg *config.Config, logger *slog.Logger) *Probe {
	return &Probe{
		api:     api,
		bucket:  cfg.Storage.OutputsBucket,
		maxKeys: int32(cfg.Storage.ProbeMaxKeys),
		timeout: cfg.ProbeTimeout(),
		logger:  logging.NewComponentLogger(logger, "probe"),
		now:     time.Now,
	}
}

// NewS3Client builds the S3 client, honouring a custom endpoint and path-style addressing.
func NewS3Client(awsCfg aws.Config, storage config.Storage) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.Endpoint)
		}
		o.UsePathStyle = storage.UsePathStyle
	})
}

// Check returns a synthesized Complete event when a playlist exists for the asset.
// A miss returns ok=false with a nil error.
func (p *Probe) Check(ctx context.Context, asset *assets.Asset) (events.Event, bool, error) {
	if asset == nil {
		return events.Event{}, false, nil
	}
	logger := p.logger.With(
		logging.String(logging.FieldAssetID, asset.ID),
		logging.String(logging.FieldJobID, asset.JobID),
	)
	if p.bucket == "" {
		return events.Event{}, false, services.Wrap(services.ErrConfiguration, "probe", "check", "outputs bucket not configured", nil)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	prefix := artifacts.Prefix(artifacts.HLSFolder, asset.ID)
	out, err := p.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(p.maxKeys),
	})
	if err != nil {
		return events.Event{}, false, services.Wrap(services.ErrServiceUnavailable, "probe", "list objects", "list "+prefix, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	playlist := artifacts.PreferredPlaylist(keys)
	if playlist == "" {
		logging.WarnWithContext(logger, "storage probe found no playlist", "probe_miss",
			logging.String("bucket", p.bucket),
			logging.String("prefix", prefix),
			logging.Int("keys_seen", len(keys)),
			logging.String(logging.FieldErrorHint, "check the encoder job in the MediaConvert console"),
			logging.String(logging.FieldImpact, "asset completion could not be confirmed from storage"),
		)
		return events.Event{}, false, nil
	}

	outputs := artifacts.DeriveFromStream(asset.ID, "/"+strings.TrimPrefix(playlist, "/"))
	if derived := artifacts.Derive(asset.ID, asset.SourceKey); !derived.IsEmpty() {
		derived.Stream = outputs.Stream
		outputs = derived
	}
	logger.Info("storage probe found playlist",
		logging.String("stream", outputs.Stream),
		logging.String(logging.FieldEventType, "probe_hit"),
	)
	return events.Event{
		AssetID:    asset.ID,
		JobID:      asset.JobID,
		Kind:       events.KindComplete,
		Outputs:    outputs,
		ObservedAt: p.now().UTC(),
		Source:     events.SourceProbe,
	}, true, nil
}
