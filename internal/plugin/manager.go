package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/config"
	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/hostfn"
	"github.com/woxQAQ/sourcehost/internal/settings"
	"github.com/woxQAQ/sourcehost/internal/wasm"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// InitializeExport is called once on every new instance that exports it.
const InitializeExport = abi.ExportInitialize

// Manager manages plugin lifecycle.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	settings    settings.Store
	logger      *zap.Logger

	// One HTTP client per plugin, so instances of a plugin share cookies
	// and circuit state.
	clientsMu sync.Mutex
	clients   map[string]*fetch.Client

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new plugin manager. A nil store keeps settings in
// memory for the life of the manager.
func NewManager(
	cfg *config.Config,
	runtime *wasm.Runtime,
	store settings.Store,
	logger *zap.Logger,
) *Manager {
	if store == nil {
		store = settings.NewMemoryStore()
	}
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, logger),
		settings:    store,
		clients:     make(map[string]*fetch.Client),
		logger:      logger.With(zap.String("component", "plugin-manager")),
	}
}

// LoadAll discovers and loads all plugins from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("plugins already loaded")
	}

	m.logger.Info("Loading plugins",
		zap.Strings("paths", m.cfg.PluginPaths),
	)

	plugins, err := m.loader.DiscoverPlugins(ctx, m.cfg.PluginPaths)
	if err != nil {
		var none *NoPluginsFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No plugins found in configured paths",
				zap.Strings("paths", m.cfg.PluginPaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, plugin := range plugins {
		if err := m.registry.Register(plugin); err != nil {
			m.logger.Error("Failed to register plugin",
				zap.String("id", plugin.Manifest.ID),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Plugins loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetPlugin retrieves a plugin by id.
func (m *Manager) GetPlugin(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.registry.Get(id)
	if !ok {
		return nil, &PluginNotFoundError{PluginID: id}
	}

	return plugin, nil
}

// FindByLanguage returns the plugins serving lang.
func (m *Manager) FindByLanguage(lang string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry.LookupByLanguage(lang)
}

// Instantiate starts a new instance of a plugin, with the namespaces,
// settings, defaults and network limits its manifest declares, and runs its
// initialize export.
func (m *Manager) Instantiate(ctx context.Context, id string) (*wasm.Instance, error) {
	plugin, err := m.GetPlugin(id)
	if err != nil {
		return nil, err
	}
	manifest := plugin.Manifest

	client, err := m.client(plugin)
	if err != nil {
		return nil, &PluginLoadError{PluginID: id, Err: err}
	}

	defaults, err := manifest.Defaults()
	if err != nil {
		return nil, &PluginLoadError{PluginID: id, Err: err}
	}

	config := &wasm.InstanceConfig{
		ModuleName: manifest.ID,
		Namespaces: manifest.Capabilities,
		Session: hostfn.Options{
			PluginID:   manifest.ID,
			Settings:   m.settings,
			Defaults:   defaults,
			Transport:  client,
			RateLimit:  manifest.Network.RateLimit,
			RatePeriod: time.Duration(manifest.Network.RateLimitPeriod) * time.Second,
		},
	}

	instance, err := m.instanceMgr.Instantiate(ctx, config)
	if err != nil {
		return nil, err
	}

	if instance.HasExport(InitializeExport) {
		if _, err := instance.Call(ctx, InitializeExport); err != nil {
			_ = instance.Close(ctx)
			return nil, &PluginLoadError{PluginID: id, Err: err}
		}
	}

	m.logger.Debug("Plugin instance started",
		zap.String("id", id),
		zap.String("instance_id", instance.ID),
	)

	return instance, nil
}

// Client returns the HTTP client shared by every instance of a plugin.
func (m *Manager) Client(id string) (*fetch.Client, error) {
	plugin, err := m.GetPlugin(id)
	if err != nil {
		return nil, err
	}
	return m.client(plugin)
}

func (m *Manager) client(plugin *Plugin) (*fetch.Client, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	id := plugin.Manifest.ID
	if c, ok := m.clients[id]; ok {
		return c, nil
	}

	c, err := fetch.NewClient(id, fetch.Config{
		UserAgent:       m.cfg.Net.UserAgent,
		AllowedHosts:    plugin.Manifest.Network.AllowedHosts,
		MaxBodySize:     m.cfg.Net.MaxBodySize,
		RequestTimeout:  m.cfg.Net.Timeout(),
		BreakerFailures: m.cfg.Net.BreakerFailures,
		BreakerTimeout:  m.cfg.Net.BreakerOpenTimeout(),
	}, m.logger)
	if err != nil {
		return nil, err
	}
	m.clients[id] = c
	return c, nil
}

// Shutdown gracefully shuts down all plugins.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down plugin manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Plugin manager shutdown complete")
	return nil
}

// Registry returns the plugin registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Settings returns the store backing the defaults namespace.
func (m *Manager) Settings() settings.Store {
	return m.settings
}

// IsLoaded returns whether plugins have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
