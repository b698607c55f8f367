package config

const (
	defaultDataDir               = "~/.local/share/meetiq"
	defaultLogDir                = "~/.local/share/meetiq/logs"
	defaultCaptureDir            = "~/.local/share/meetiq/capture"
	defaultAPIBaseURL            = "http://127.0.0.1:8004"
	defaultAPIRequestTimeout     = 60
	defaultReconcileRounds       = 1
	defaultPollIntervalSeconds   = 3
	defaultPollMaxAttempts       = 120
	defaultPollProgressFloor     = 0.70
	defaultPollProgressCeiling   = 0.98
	defaultCaptureSettleMillis   = 250
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

func defaultCaptureExtensions() []string {
	return []string{".aac", ".webm", ".mp3", ".wav"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			RequestTimeout: defaultAPIRequestTimeout,
		},
		Upload: Upload{
			ReconcileRounds: defaultReconcileRounds,
		},
		Poller: Poller{
			IntervalSeconds: defaultPollIntervalSeconds,
			MaxAttempts:     defaultPollMaxAttempts,
			ProgressFloor:   defaultPollProgressFloor,
			ProgressCeiling: defaultPollProgressCeiling,
		},
		Capture: Capture{
			Extensions:   defaultCaptureExtensions(),
			SettleMillis: defaultCaptureSettleMillis,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Uploads:        true,
			Processing:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
