package preflight

import (
	"context"

	"encodesync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDatabase(ctx, cfg.DatabasePath()),
		CheckRequired("Uploads bucket", cfg.Storage.UploadsBucket, "set storage.uploads_bucket or S3_UPLOADS_BUCKET"),
		CheckRequired("Outputs bucket", cfg.Storage.OutputsBucket, "set storage.outputs_bucket or S3_OUTPUTS_BUCKET"),
		CheckRequired("MediaConvert role", cfg.AWS.RoleARN, "set aws.role_arn or MEDIACONVERT_ROLE_ARN"),
		CheckWebhookURL(cfg.WebhookURL()),
		CheckAWSCredentials(ctx, cfg.AWS),
	}

	if cfg.Broadcast.NATSURL != "" {
		results = append(results, CheckNATS(cfg.Broadcast.NATSURL))
	} else {
		results = append(results, Result{Name: "NATS", Passed: true, Skipped: true, Detail: "Not configured (SSE only)"})
	}
	return results
}

// Failed reports whether any check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
