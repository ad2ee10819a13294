package testsupport

import (
	"path/filepath"
	"testing"

	"encodesync/internal/config"
)

// ConfigOption adjusts the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns a complete configuration rooted in a fresh temp directory,
// with buckets, role and webhook URL filled so submissions validate.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.RoleARN = "arn:aws:iam::123456789012:role/MediaConvert_Default_Role"
	cfg.AWS.MediaConvertEndpoint = "https://mediaconvert.us-east-1.amazonaws.com"
	cfg.Storage.UploadsBucket = "uploads-test"
	cfg.Storage.OutputsBucket = "outputs-test"
	cfg.Webhook.PublicURL = "https://hooks.example.com/webhooks/mediaconvert"
	cfg.Webhook.VerifySignatures = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIToken sets the bearer token the daemon API requires.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) { cfg.Paths.APIToken = token }
}

// WithPolling overrides the attempt budget and not-found limit.
func WithPolling(maxAttempts, notFoundLimit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Polling.MaxAttempts = maxAttempts
		cfg.Polling.NotFoundLimit = notFoundLimit
	}
}

// WithSignatureVerification toggles SNS signature checks on the webhook.
func WithSignatureVerification(enabled bool) ConfigOption {
	return func(cfg *config.Config) { cfg.Webhook.VerifySignatures = enabled }
}

// BaseDir returns the temp directory backing cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
