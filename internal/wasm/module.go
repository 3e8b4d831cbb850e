package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader handles loading and compiling plugin modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource supplies module bytecode.
type ModuleSource interface {
	Bytes() ([]byte, error)
	// Name identifies the module in the compiled-module cache.
	Name() string
}

// FileModuleSource loads a module from disk. Name defaults to the path.
type FileModuleSource struct {
	Path       string
	ModuleName string
}

func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f *FileModuleSource) Name() string {
	if f.ModuleName != "" {
		return f.ModuleName
	}
	return f.Path
}

// MemoryModuleSource holds bytecode already in memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule compiles source unless a module of the same name is cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	start := time.Now()
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	module := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now(),
	}
	for _, def := range compiled.ImportedFunctions() {
		ns, name, _ := def.Import()
		module.Imports = append(module.Imports, ns+"."+name)
	}
	for name := range compiled.ExportedFunctions() {
		module.Exports = append(module.Exports, name)
	}
	sort.Strings(module.Exports)

	l.runtime.StoreCompiledModule(module)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Int("imports", len(module.Imports)),
		zap.Int("exports", len(module.Exports)),
		zap.Duration("duration", time.Since(start)),
	)

	return module, nil
}

// LoadModuleFromFile compiles the module at path, cached under name.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, name, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path, ModuleName: name})
}

// LoadModuleFromMemory compiles data, cached under name.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}
