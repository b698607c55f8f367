package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
}

// API contains configuration for the meetIQ backend endpoints.
type API struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Client identifies the owner namespace recordings are keyed by.
type Client struct {
	OwnerID string `toml:"owner_id"`
}

// Upload contains tunables for the chunk upload and reconciliation protocol.
type Upload struct {
	// ReconcileRounds bounds how many resend-then-acknowledge passes run when
	// the server reports missing chunks. The protocol is designed around a
	// single round; raise it only if the backend drops chunks under load.
	ReconcileRounds int `toml:"reconcile_rounds"`
}

// Poller contains tunables for the asynchronous job status poll loop.
type Poller struct {
	IntervalSeconds int     `toml:"interval_seconds"`
	MaxAttempts     int     `toml:"max_attempts"`
	ProgressFloor   float64 `toml:"progress_floor"`
	ProgressCeiling float64 `toml:"progress_ceiling"`
}

// Capture contains settings for the capture-session directory watcher.
type Capture struct {
	Extensions   []string `toml:"extensions"`
	SettleMillis int      `toml:"settle_millis"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Uploads        bool   `toml:"uploads"`
	Processing     bool   `toml:"processing"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for meetiq.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and capture-inbox directories
//   - API: backend base URL and per-call timeout
//   - Client: owner identifier recordings are namespaced under
//   - Upload: reconciliation retry policy
//   - Poller: job status poll interval, attempt budget, progress bounds
//   - Capture: chunk file extensions and write-settle delay
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Client        Client        `toml:"client"`
	Upload        Upload        `toml:"upload"`
	Poller        Poller        `toml:"poller"`
	Capture       Capture       `toml:"capture"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meetiq/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetiq.toml")
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

// EnsureDirectories creates the directories meetiq needs to operate.
// CaptureDir is created best-effort because an external recorder may own it.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.CaptureDir) != "" {
		_ = os.MkdirAll(c.Paths.CaptureDir, 0o755)
	}
	return nil
}

// ChunkDir returns the directory chunk blobs for a recording are stored under.
func (c *Config) ChunkDir(ownerID, recordingID string) string {
	return filepath.Join(c.Paths.DataDir, "chunks", ownerID, recordingID)
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.LogDir, &c.Paths.CaptureDir} {
		if *field == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.Client.OwnerID = strings.TrimSpace(c.Client.OwnerID)
	if len(c.Capture.Extensions) == 0 {
		c.Capture.Extensions = defaultCaptureExtensions()
	}
	normalized := make([]string, 0, len(c.Capture.Extensions))
	for _, ext := range c.Capture.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Capture.Extensions = normalized
	return nil
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

// ExpandPath expands a user-supplied path (including ~) into an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
