// Package service wires the runtime, settings store and plugin manager
// into a Host, and exposes plugin instances as typed Sources.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/config"
	"github.com/woxQAQ/sourcehost/internal/plugin"
	"github.com/woxQAQ/sourcehost/internal/settings"
	"github.com/woxQAQ/sourcehost/internal/wasm"
)

// Host owns everything a running sourcehost needs.
type Host struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *wasm.Runtime
	store   settings.Store
	plugins *plugin.Manager
}

// NewHost builds the runtime and settings store from cfg and loads every
// plugin found under the configured paths.
func NewHost(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Host, error) {
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		DebugEnabled:     cfg.Wasm.Debug,
		CacheDir:         cfg.Wasm.CacheDir,
		MaxInstances:     cfg.Wasm.MaxInstances,
		ExecutionTimeout: cfg.Wasm.Timeout(),
		HeapBase:         cfg.Wasm.HeapBase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	store, err := settings.Open(cfg.Settings.Driver, cfg.Settings.Path)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	plugins := plugin.NewManager(cfg, runtime, store, logger)
	if err := plugins.LoadAll(ctx); err != nil {
		_ = runtime.Close(ctx)
		_ = store.Close()
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	logger.Info("Source host initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.String("settings_driver", cfg.Settings.Driver),
		zap.Int("plugins", plugins.Registry().Count()),
	)

	return &Host{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		store:   store,
		plugins: plugins,
	}, nil
}

// Plugins returns the plugin manager.
func (h *Host) Plugins() *plugin.Manager {
	return h.plugins
}

// Runtime returns the Wasm runtime.
func (h *Host) Runtime() *wasm.Runtime {
	return h.runtime
}

// Open starts a new instance of plugin id.
func (h *Host) Open(ctx context.Context, id string) (*Source, error) {
	p, err := h.plugins.GetPlugin(id)
	if err != nil {
		return nil, err
	}

	client, err := h.plugins.Client(id)
	if err != nil {
		return nil, err
	}

	instance, err := h.plugins.Instantiate(ctx, id)
	if err != nil {
		return nil, err
	}

	return newSource(p, instance, client.ImageHeaders, h.logger), nil
}

// Close gracefully shuts down the host.
func (h *Host) Close(ctx context.Context) error {
	h.logger.Info("Shutting down source host")

	var errs []error
	if err := h.plugins.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.store.Close(); err != nil {
		h.logger.Error("Failed to close settings store", zap.Error(err))
		errs = append(errs, err)
	}

	h.logger.Info("Source host shutdown complete")
	return errors.Join(errs...)
}
