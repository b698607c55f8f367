package testsupport

import (
	"path/filepath"
	"testing"

	"meetiq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "capture")
	cfgVal.Client.OwnerID = "test-owner"
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.Poller.IntervalSeconds = 0
	cfgVal.Poller.MaxAttempts = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithOwner overrides the owner identifier on the test config.
func WithOwner(ownerID string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Client.OwnerID = ownerID
	}
}

// WithPollBudget sets the poll attempt budget on the test config.
func WithPollBudget(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Poller.MaxAttempts = attempts
	}
}

// WithReconcileRounds sets the reconciliation round budget on the test config.
func WithReconcileRounds(rounds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.ReconcileRounds = rounds
	}
}
