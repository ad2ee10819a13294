package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// AWS contains credentials and MediaConvert job settings.
type AWS struct {
	Region               string `toml:"region"`
	AccessKeyID          string `toml:"access_key_id"`
	SecretAccessKey      string `toml:"secret_access_key"`
	MediaConvertEndpoint string `toml:"mediaconvert_endpoint"`
	RoleARN              string `toml:"role_arn"`
	Queue                string `toml:"queue"`
	JobNamePrefix        string `toml:"job_name_prefix"`
	Acceleration         string `toml:"acceleration"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// Storage contains the S3 buckets the encoder reads from and writes to.
type Storage struct {
	UploadsBucket string `toml:"uploads_bucket"`
	OutputsBucket string `toml:"outputs_bucket"`
	Endpoint      string `toml:"endpoint"`
	UsePathStyle  bool   `toml:"use_path_style"`
	ProbeMaxKeys  int    `toml:"probe_max_keys"`
	ProbeTimeout  int    `toml:"probe_timeout"`
}

// Webhook contains settings for inbound SNS job state notifications.
type Webhook struct {
	PublicURL        string   `toml:"public_url"`
	VerifySignatures bool     `toml:"verify_signatures"`
	AllowedTopicARNs []string `toml:"allowed_topic_arns"`
	Token            string   `toml:"token"`
	ConfirmMode      string   `toml:"confirm_mode"`
}

// Polling contains the monitor cadence and attempt budget, in seconds.
type Polling struct {
	InitialDelay        int `toml:"initial_delay"`
	SubmittedInterval   int `toml:"submitted_interval"`
	ProgressingInterval int `toml:"progressing_interval"`
	ErrorInterval       int `toml:"error_interval"`
	MaxAttempts         int `toml:"max_attempts"`
	NotFoundLimit       int `toml:"not_found_limit"`
	QueryTimeout        int `toml:"query_timeout"`
}

// Reconcile contains settings for the state machine commit path.
type Reconcile struct {
	CommitTimeout int `toml:"commit_timeout"`
}

// Broadcast contains configuration for live status channels.
type Broadcast struct {
	NATSURL       string `toml:"nats_url"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Ready          bool   `toml:"ready"`
	Failed         bool   `toml:"failed"`
	Attention      bool   `toml:"attention"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for encodesync.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - AWS: credentials, MediaConvert endpoint, role, and queue
//   - Storage: uploads/outputs buckets and storage probe limits
//   - Webhook: SNS notification authenticity and confirmation
//   - Polling: monitor intervals and attempt budget
//   - Reconcile: commit timeout for state transitions
//   - Broadcast: NATS status channels
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	AWS           AWS           `toml:"aws"`
	Storage       Storage       `toml:"storage"`
	Webhook       Webhook       `toml:"webhook"`
	Polling       Polling       `toml:"polling"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Broadcast     Broadcast     `toml:"broadcast"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("encodesync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the asset database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "assets.db")
}

// LockPath returns the location of the single-instance daemon lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "encodesyncd.lock")
}

// APIBaseURL returns the HTTP base URL clients use to reach the daemon API.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// WebhookURL returns the callback target embedded in submitted jobs.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.Webhook.PublicURL, "/")
}

// PollSchedule converts the polling section into durations.
func (c *Config) PollSchedule() PollSchedule {
	return PollSchedule{
		InitialDelay:        seconds(c.Polling.InitialDelay),
		SubmittedInterval:   seconds(c.Polling.SubmittedInterval),
		ProgressingInterval: seconds(c.Polling.ProgressingInterval),
		ErrorInterval:       seconds(c.Polling.ErrorInterval),
		MaxAttempts:         c.Polling.MaxAttempts,
		NotFoundLimit:       c.Polling.NotFoundLimit,
		QueryTimeout:        seconds(c.Polling.QueryTimeout),
	}
}

// PollSchedule is the duration-typed view of the polling section.
type PollSchedule struct {
	InitialDelay        time.Duration
	SubmittedInterval   time.Duration
	ProgressingInterval time.Duration
	ErrorInterval       time.Duration
	MaxAttempts         int
	NotFoundLimit       int
	QueryTimeout        time.Duration
}

// CommitTimeout bounds a single reconciler persistence write.
func (c *Config) CommitTimeout() time.Duration {
	return seconds(c.Reconcile.CommitTimeout)
}

// RequestTimeout bounds one MediaConvert submit, cancel or endpoint lookup.
func (c *Config) RequestTimeout() time.Duration {
	return seconds(c.AWS.RequestTimeout)
}

// ProbeTimeout bounds a single storage probe listing.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Storage.ProbeTimeout)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrConfigExists is returned by CreateSample when the target is present and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w at %s", ErrConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		_ = file.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return file.Close()
}
