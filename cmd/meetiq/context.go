package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"meetiq/internal/blob"
	"meetiq/internal/config"
	"meetiq/internal/logging"
	"meetiq/internal/notifications"
	"meetiq/internal/recordings"
	"meetiq/internal/transport"
	"meetiq/internal/uploader"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// pipeline bundles the wired subsystems a command needs: store, blobs,
// transport, notifier, orchestrator. The data directory is guarded by a file
// lock so two meetiq processes never mutate the same recordings database.
type pipeline struct {
	cfg          *config.Config
	store        *recordings.Store
	blobs        blob.Backend
	transport    *transport.Client
	notifier     notifications.Service
	orchestrator *uploader.Orchestrator
	logger       *slog.Logger

	lock *flock.Flock
}

func (c *commandContext) openPipeline() (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "meetiq.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another meetiq process is using this data directory")
	}

	store, err := recordings.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	blobs := blob.NewFilesystem(filepath.Join(cfg.Paths.DataDir, "chunks"))
	client := transport.New(cfg)
	notifier := notifications.NewService(cfg)

	return &pipeline{
		cfg:          cfg,
		store:        store,
		blobs:        blobs,
		transport:    client,
		notifier:     notifier,
		orchestrator: uploader.New(cfg, store, blobs, client, notifier, logger),
		logger:       logger,
		lock:         lock,
	}, nil
}

func (p *pipeline) Close() {
	if p == nil {
		return
	}
	if p.store != nil {
		_ = p.store.Close()
	}
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
}
