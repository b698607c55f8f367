package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate reports configuration values that would prevent meetiq from
// operating. Path expansion must have already happened (see Load).
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	if strings.TrimSpace(c.API.BaseURL) == "" {
		problems = append(problems, "api.base_url must be set")
	} else if parsed, err := url.Parse(c.API.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		problems = append(problems, fmt.Sprintf("api.base_url %q is not a valid URL", c.API.BaseURL))
	}
	if c.API.RequestTimeout <= 0 {
		problems = append(problems, "api.request_timeout must be positive")
	}

	if c.Upload.ReconcileRounds < 0 {
		problems = append(problems, "upload.reconcile_rounds must not be negative")
	}

	if c.Poller.IntervalSeconds <= 0 {
		problems = append(problems, "poller.interval_seconds must be positive")
	}
	if c.Poller.MaxAttempts <= 0 {
		problems = append(problems, "poller.max_attempts must be positive")
	}
	if c.Poller.ProgressFloor < 0 || c.Poller.ProgressFloor > 1 {
		problems = append(problems, "poller.progress_floor must be within [0,1]")
	}
	if c.Poller.ProgressCeiling < 0 || c.Poller.ProgressCeiling > 1 {
		problems = append(problems, "poller.progress_ceiling must be within [0,1]")
	}
	if c.Poller.ProgressFloor >= c.Poller.ProgressCeiling {
		problems = append(problems, "poller.progress_floor must be below poller.progress_ceiling")
	}

	if c.Capture.SettleMillis < 0 {
		problems = append(problems, "capture.settle_millis must not be negative")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
