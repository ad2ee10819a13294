package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAWS(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validatePolling(); err != nil {
		return err
	}
	if err := c.validateBroadcast(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAWS() error {
	switch c.AWS.Acceleration {
	case "DISABLED", "ENABLED", "PREFERRED":
	default:
		return fmt.Errorf("aws.acceleration must be DISABLED, ENABLED, or PREFERRED (got %q)", c.AWS.Acceleration)
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return errors.New("aws.access_key_id and aws.secret_access_key must be set together")
	}
	if c.AWS.MediaConvertEndpoint != "" {
		if err := validateURL("aws.mediaconvert_endpoint", c.AWS.MediaConvertEndpoint); err != nil {
			return err
		}
	}
	return ensurePositiveMap(map[string]int{
		"aws.request_timeout": c.AWS.RequestTimeout,
	})
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint != "" {
		if err := validateURL("storage.endpoint", c.Storage.Endpoint); err != nil {
			return err
		}
	}
	if c.Storage.ProbeMaxKeys > 1000 {
		return errors.New("storage.probe_max_keys must not exceed 1000")
	}
	return ensurePositiveMap(map[string]int{
		"storage.probe_timeout": c.Storage.ProbeTimeout,
	})
}

func (c *Config) validateWebhook() error {
	if c.Webhook.PublicURL != "" {
		if err := validateURL("webhook.public_url", c.Webhook.PublicURL); err != nil {
			return err
		}
	}
	switch c.Webhook.ConfirmMode {
	case "api", "url":
	default:
		return fmt.Errorf("webhook.confirm_mode must be api or url (got %q)", c.Webhook.ConfirmMode)
	}
	return nil
}

func (c *Config) validatePolling() error {
	if err := ensurePositiveMap(map[string]int{
		"polling.initial_delay":         c.Polling.InitialDelay,
		"polling.submitted_interval":    c.Polling.SubmittedInterval,
		"polling.progressing_interval":  c.Polling.ProgressingInterval,
		"polling.error_interval":        c.Polling.ErrorInterval,
		"polling.max_attempts":          c.Polling.MaxAttempts,
		"polling.not_found_limit":       c.Polling.NotFoundLimit,
		"polling.query_timeout":         c.Polling.QueryTimeout,
		"reconcile.commit_timeout":      c.Reconcile.CommitTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Polling.SubmittedInterval > c.Polling.ProgressingInterval {
		return errors.New("polling.submitted_interval must not exceed polling.progressing_interval")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.NATSURL != "" && !strings.Contains(c.Broadcast.NATSURL, "://") {
		return fmt.Errorf("broadcast.nats_url must include a scheme (got %q)", c.Broadcast.NATSURL)
	}
	if strings.ContainsAny(c.Broadcast.ChannelPrefix, " *>") {
		return fmt.Errorf("broadcast.channel_prefix contains invalid subject characters: %q", c.Broadcast.ChannelPrefix)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host (got %q)", field, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
