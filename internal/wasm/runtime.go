package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/guest"
)

// Runtime owns the wazero runtime shared by every plugin, the host modules
// registered on it and the compiled-module cache.
type Runtime struct {
	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	registrar *Registrar

	// Compiled modules by name, so a plugin is compiled once however many
	// instances it has.
	modules sync.Map // map[string]*CompiledModule

	// Live instances by id, closed on shutdown.
	instances sync.Map // map[string]*Instance
	live      atomic.Int32

	config *RuntimeConfig
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// MemoryPages caps each instance's linear memory (64KiB pages).
	MemoryPages uint32

	// DebugEnabled logs every host call.
	DebugEnabled bool

	// CacheDir persists compiled code between runs. Empty keeps the cache
	// in memory.
	CacheDir string

	// MaxInstances bounds the number of live instances. Zero is unlimited.
	MaxInstances int

	// ExecutionTimeout bounds a single guest call. Zero is unlimited.
	ExecutionTimeout time.Duration

	// HeapBase is where host allocations start for guests that do not
	// export __heap_base.
	HeapBase uint32
}

// CompiledModule wraps a wazero.CompiledModule with metadata.
type CompiledModule struct {
	Module wazero.CompiledModule

	Name      string
	Source    string // file path or identifier
	SizeBytes int64

	CompiledAt time.Time

	// Imports lists the host functions the module needs, as
	// "namespace.name".
	Imports []string
	// Exports lists the module's exported functions.
	Exports []string
}

// NewRuntime creates the wazero runtime and registers the host namespaces.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true)
	if config.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryPages)
	}

	var cache wazero.CompilationCache
	if config.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", config.CacheDir, err)
		}
		rc = rc.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)

	heapBase := config.HeapBase
	if heapBase == 0 {
		heapBase = guest.DefaultHeapBase
	}
	registrar := NewRegistrar(heapBase, config.DebugEnabled, logger)
	if err := registrar.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, err
	}

	runtime := &Runtime{
		runtime:   r,
		cache:     cache,
		registrar: registrar,
		config:    config,
		logger:    logger.With(zap.String("component", "wasm-runtime")),
		closed:    make(chan struct{}),
	}

	runtime.logger.Info("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
		zap.Duration("execution_timeout", config.ExecutionTimeout),
	)

	return runtime, nil
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:      256, // 16MB
		MaxInstances:     100,
		ExecutionTimeout: 60 * time.Second,
		HeapBase:         guest.DefaultHeapBase,
	}
}

// Registrar returns the import surface registered on this runtime.
func (r *Runtime) Registrar() *Registrar {
	return r.registrar
}

// Close closes every live instance, then the runtime. Safe to call more
// than once.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("Shutting down Wasm runtime")

		r.instances.Range(func(key, value any) bool {
			if closeErr := value.(*Instance).Close(ctx); closeErr != nil {
				r.logger.Warn("Failed to close instance",
					zap.String("instance_id", key.(string)),
					zap.Error(closeErr),
				)
			}
			return true
		})

		err = r.runtime.Close(ctx)
		if r.cache != nil {
			if cacheErr := r.cache.Close(ctx); cacheErr != nil && err == nil {
				err = cacheErr
			}
		}

		close(r.closed)
		r.logger.Info("Wasm runtime shutdown complete")
	})

	return err
}

// GetCompiledModule retrieves a compiled module from cache.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		return val.(*CompiledModule), true
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}

// GetInstance retrieves a live instance.
func (r *Runtime) GetInstance(instanceID string) (*Instance, bool) {
	if val, ok := r.instances.Load(instanceID); ok {
		return val.(*Instance), true
	}
	return nil, false
}

// StoreInstance tracks a live instance.
func (r *Runtime) StoreInstance(instance *Instance) {
	if _, loaded := r.instances.LoadOrStore(instance.ID, instance); !loaded {
		r.live.Add(1)
	}
}

// DeleteInstance stops tracking an instance.
func (r *Runtime) DeleteInstance(instanceID string) {
	if _, loaded := r.instances.LoadAndDelete(instanceID); loaded {
		r.live.Add(-1)
	}
}

// InstanceCount returns the number of live instances.
func (r *Runtime) InstanceCount() int {
	return int(r.live.Load())
}

// IsClosed returns whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
