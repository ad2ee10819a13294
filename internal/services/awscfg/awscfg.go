// Package awscfg builds the shared aws.Config for every AWS client the daemon uses.
package awscfg

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"encodesync/internal/config"
	"encodesync/internal/services"
)

// Load resolves region and credentials. Static keys win when configured;
// otherwise the SDK default chain (env, shared files, instance role) applies.
func Load(ctx context.Context, cfg config.AWS) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, services.Wrap(services.ErrConfiguration, "aws", "load config", "resolve AWS configuration", err)
	}
	if awsCfg.Region == "" {
		return aws.Config{}, services.Wrap(services.ErrConfiguration, "aws", "load config",
			"no AWS region configured (set aws.region or AWS_REGION)", nil)
	}
	return awsCfg, nil
}
