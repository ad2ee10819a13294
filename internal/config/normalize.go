package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAWS()
	c.normalizeStorage()
	c.normalizeWebhook()
	c.normalizeBroadcast()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	envFallback(&c.Paths.APIToken, "ENCODESYNC_API_TOKEN")
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeAWS() {
	envFallback(&c.AWS.Region, "AWS_REGION")
	envFallback(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	envFallback(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	envFallback(&c.AWS.MediaConvertEndpoint, "MEDIACONVERT_ENDPOINT")
	envFallback(&c.AWS.RoleARN, "MEDIACONVERT_ROLE_ARN")
	c.AWS.Region = strings.TrimSpace(c.AWS.Region)
	c.AWS.RoleARN = strings.TrimSpace(c.AWS.RoleARN)
	c.AWS.MediaConvertEndpoint = strings.TrimRight(strings.TrimSpace(c.AWS.MediaConvertEndpoint), "/")
	c.AWS.Queue = strings.TrimSpace(c.AWS.Queue)
	if c.AWS.Queue == "" {
		c.AWS.Queue = defaultMediaConvertQueue
	}
	c.AWS.JobNamePrefix = strings.TrimSpace(c.AWS.JobNamePrefix)
	if c.AWS.JobNamePrefix == "" {
		c.AWS.JobNamePrefix = defaultJobNamePrefix
	}
	c.AWS.Acceleration = strings.ToUpper(strings.TrimSpace(c.AWS.Acceleration))
	if c.AWS.Acceleration == "" {
		c.AWS.Acceleration = defaultAcceleration
	}
}

func (c *Config) normalizeStorage() {
	envFallback(&c.Storage.UploadsBucket, "S3_UPLOADS_BUCKET")
	envFallback(&c.Storage.OutputsBucket, "S3_OUTPUTS_BUCKET")
	c.Storage.UploadsBucket = strings.TrimSpace(c.Storage.UploadsBucket)
	c.Storage.OutputsBucket = strings.TrimSpace(c.Storage.OutputsBucket)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.ProbeMaxKeys <= 0 {
		c.Storage.ProbeMaxKeys = defaultProbeMaxKeys
	}
}

func (c *Config) normalizeWebhook() {
	envFallback(&c.Webhook.PublicURL, "WEBHOOK_PUBLIC_URL")
	c.Webhook.PublicURL = strings.TrimSpace(c.Webhook.PublicURL)
	c.Webhook.Token = strings.TrimSpace(c.Webhook.Token)
	c.Webhook.ConfirmMode = strings.ToLower(strings.TrimSpace(c.Webhook.ConfirmMode))
	if c.Webhook.ConfirmMode == "" {
		c.Webhook.ConfirmMode = defaultConfirmMode
	}
	arns := c.Webhook.AllowedTopicARNs[:0]
	for _, arn := range c.Webhook.AllowedTopicARNs {
		if trimmed := strings.TrimSpace(arn); trimmed != "" {
			arns = append(arns, trimmed)
		}
	}
	c.Webhook.AllowedTopicARNs = arns
}

func (c *Config) normalizeBroadcast() {
	envFallback(&c.Broadcast.NATSURL, "NATS_URL")
	c.Broadcast.NATSURL = strings.TrimSpace(c.Broadcast.NATSURL)
	c.Broadcast.ChannelPrefix = strings.TrimSpace(c.Broadcast.ChannelPrefix)
	if c.Broadcast.ChannelPrefix == "" {
		c.Broadcast.ChannelPrefix = defaultChannelPrefix
	}
}

func (c *Config) normalizeNotifications() {
	envFallback(&c.Notifications.NtfyTopic, "NTFY_TOPIC")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func envFallback(target *string, key string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}
