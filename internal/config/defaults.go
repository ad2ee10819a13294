package config

const (
	defaultConfigPath                 = "~/.config/encodesync/config.toml"
	defaultDataDir                    = "~/.local/share/encodesync"
	defaultLogDir                     = "~/.local/share/encodesync/logs"
	defaultAPIBind                    = "127.0.0.1:7490"
	defaultMediaConvertQueue          = "Default"
	defaultJobNamePrefix              = "encodesync"
	defaultAcceleration               = "PREFERRED"
	defaultRequestTimeout             = 30
	defaultProbeMaxKeys               = 5
	defaultProbeTimeout               = 15
	defaultConfirmMode                = "api"
	defaultPollingInitialDelay        = 10
	defaultPollingSubmittedInterval   = 10
	defaultPollingProgressingInterval = 30
	defaultPollingErrorInterval       = 60
	defaultPollingMaxAttempts         = 360
	defaultPollingNotFoundLimit       = 3
	defaultPollingQueryTimeout        = 20
	defaultCommitTimeout              = 10
	defaultChannelPrefix              = "status_"
	defaultNotifyRequestTimeout       = 10
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
	defaultLogRetentionDays           = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		AWS: AWS{
			Queue:          defaultMediaConvertQueue,
			JobNamePrefix:  defaultJobNamePrefix,
			Acceleration:   defaultAcceleration,
			RequestTimeout: defaultRequestTimeout,
		},
		Storage: Storage{
			ProbeMaxKeys: defaultProbeMaxKeys,
			ProbeTimeout: defaultProbeTimeout,
		},
		Webhook: Webhook{
			VerifySignatures: true,
			ConfirmMode:      defaultConfirmMode,
		},
		Polling: Polling{
			InitialDelay:        defaultPollingInitialDelay,
			SubmittedInterval:   defaultPollingSubmittedInterval,
			ProgressingInterval: defaultPollingProgressingInterval,
			ErrorInterval:       defaultPollingErrorInterval,
			MaxAttempts:         defaultPollingMaxAttempts,
			NotFoundLimit:       defaultPollingNotFoundLimit,
			QueryTimeout:        defaultPollingQueryTimeout,
		},
		Reconcile: Reconcile{
			CommitTimeout: defaultCommitTimeout,
		},
		Broadcast: Broadcast{
			ChannelPrefix: defaultChannelPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Ready:          true,
			Failed:         true,
			Attention:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
