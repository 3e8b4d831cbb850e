package wasm

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/hostfn"
	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

var errNoMemory = errors.New("module does not export memory")

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID. Generated when empty.
	InstanceID string

	// Namespaces the instance may import from. Nil grants all of them;
	// env is always granted.
	Namespaces []string

	// Session configures the host state backing the instance.
	Session hostfn.Options
}

// Instance is an instantiated plugin module together with its host state.
type Instance struct {
	module    api.Module
	session   *hostfn.Session
	runtime   *Runtime
	timeout   time.Duration
	exports   map[string]api.Function
	logger    *zap.Logger
	closeOnce sync.Once

	// mu serializes guest calls; the session is not safe for concurrent use.
	mu sync.Mutex

	ID        string
	Name      string
	CreatedAt time.Time
}

// CallResult is the outcome of one guest call.
type CallResult struct {
	// Values are the raw results of the export.
	Values []uint64
	// Objects are the records the guest built through the aidoku namespace
	// during the call, in buffer order.
	Objects []domain.Object
}

// Instantiate creates a new instance from a compiled module. The module's
// imports are checked against the registered surface and the granted
// namespaces before anything runs.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	if err := m.validateImports(compiled, config.Namespaces); err != nil {
		return nil, err
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = ulid.Make().String()
	}

	// Module.Memory() of a memoryless module is a non-nil interface over a
	// nil instance, so the check has to run on the compiled definitions.
	if !hasMemory(compiled.Module) {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        errNoMemory,
		}
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	registrar := m.runtime.registrar
	session := hostfn.NewSession(config.Session, m.logger)

	// Bound before instantiation so a start function can already call into
	// the host.
	registrar.Bind(instanceID, session)

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions("_initialize")

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		registrar.Unbind(instanceID)
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	if !session.Bound() {
		session.Bind(module.Memory(), registrar.guestHeapBase(module))
	}

	exports := make(map[string]api.Function, len(compiled.Exports))
	for _, name := range compiled.Exports {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	instance := &Instance{
		module:    module,
		session:   session,
		runtime:   m.runtime,
		timeout:   m.runtime.config.ExecutionTimeout,
		exports:   exports,
		logger:    m.logger.With(zap.String("instance_id", instanceID)),
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now(),
	}

	m.runtime.StoreInstance(instance)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return instance, nil
}

// hasMemory reports whether the module exports or imports a linear memory.
func hasMemory(compiled wazero.CompiledModule) bool {
	return len(compiled.ExportedMemories()) > 0 || len(compiled.ImportedMemories()) > 0
}

func (m *InstanceManager) validateImports(compiled *CompiledModule, granted []string) error {
	registrar := m.runtime.registrar
	for _, def := range compiled.Module.ImportedFunctions() {
		ns, name, _ := def.Import()
		if !registrar.Provides(ns, name) {
			return &ImportError{
				ModuleName: compiled.Name,
				Namespace:  ns,
				Function:   name,
				Reason:     "no such host function",
			}
		}
		if granted != nil && ns != abi.NamespaceEnv && !slices.Contains(granted, ns) {
			return &ImportError{
				ModuleName: compiled.Name,
				Namespace:  ns,
				Function:   name,
				Reason:     "namespace not granted",
			}
		}
	}
	return nil
}

// Call invokes an exported function. The result buffer is cleared before
// the call and drained into the returned CallResult.
//
// A call that exceeds the execution timeout closes the instance.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) (*CallResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	i.session.BeginCall()
	start := time.Now()

	values, err := fn.Call(ctx, params...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			i.logger.Warn("Guest call timed out",
				zap.String("function", name),
				zap.Duration("timeout", i.timeout),
			)
			return nil, &TimeoutError{Duration: i.timeout}
		}
		i.logger.Debug("Guest call failed",
			zap.String("function", name),
			zap.Error(err),
		)
		return nil, &CallError{FunctionName: name, Err: err}
	}

	i.logger.Debug("Guest call finished",
		zap.String("function", name),
		zap.Duration("duration", time.Since(start)),
	)

	return &CallResult{Values: values, Objects: i.session.Results()}, nil
}

// PutValue stores v in the instance's std table and returns its handle, so
// host values can be passed as export arguments.
func (i *Instance) PutValue(v value.Value) int32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.PutValue(v)
}

// Value reads a std handle, typically one returned by an export.
func (i *Instance) Value(h int32) (value.Value, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.Value(h)
}

// DropValue releases a std handle once the host is done with it.
func (i *Instance) DropValue(h int32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.session.DropValue(h)
}

// PutRequest stores an unsent request that an export can modify.
func (i *Instance) PutRequest(method, rawURL string, header http.Header) int32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.PutRequest(method, rawURL, header)
}

// TakeRequest removes a request stored with PutRequest and returns it.
func (i *Instance) TakeRequest(h int32) (*fetch.Request, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.TakeRequest(h)
}

// SetMangaID sets the manga that chapters built by later calls belong to.
func (i *Instance) SetMangaID(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.session.SetMangaID(id)
}

// Stats reports the instance's live host resources.
func (i *Instance) Stats() hostfn.Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session.Stats()
}

// Exports lists the module's exported functions, sorted.
func (i *Instance) Exports() []string {
	names := make([]string, 0, len(i.exports))
	for name := range i.exports {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasExport reports whether the module exports name.
func (i *Instance) HasExport(name string) bool {
	_, ok := i.exports[name]
	return ok
}

// Close closes the instance and releases its host state. Safe to call more
// than once.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		i.mu.Lock()
		defer i.mu.Unlock()

		i.runtime.registrar.Unbind(i.ID)
		i.runtime.DeleteInstance(i.ID)
		i.session.Close()
		err = i.module.Close(ctx)
	})
	return err
}
