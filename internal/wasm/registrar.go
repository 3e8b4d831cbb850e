package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/guest"
	"github.com/woxQAQ/sourcehost/internal/hostfn"
)

var errUnboundModule = errors.New("no session bound to calling module")

// Registrar publishes the host namespaces to a wazero runtime and routes
// every host call to the Session of the guest instance that made it.
//
// Host modules are instantiated once per runtime; the calling instance is
// identified by its module name, which is its instance id.
type Registrar struct {
	namespaces []hostfn.Namespace
	sessions   sync.Map // instance id -> *hostfn.Session
	heapBase   uint32
	trace      bool
	logger     *zap.Logger
}

// NewRegistrar creates a registrar for the full import surface. heapBase is
// used for guests that do not export __heap_base.
func NewRegistrar(heapBase uint32, trace bool, logger *zap.Logger) *Registrar {
	if heapBase == 0 {
		heapBase = guest.DefaultHeapBase
	}
	return &Registrar{
		namespaces: hostfn.Namespaces(),
		heapBase:   heapBase,
		trace:      trace,
		logger:     logger.With(zap.String("component", "wasm-registrar")),
	}
}

// Instantiate builds and instantiates one host module per namespace.
func (r *Registrar) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	for _, ns := range r.namespaces {
		builder := rt.NewHostModuleBuilder(ns.Name)
		for _, fn := range ns.Functions {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(r.wrap(ns.Name, fn), fn.Params, fn.Results).
				WithParameterNames(fn.ParamNames...).
				Export(fn.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return fmt.Errorf("failed to instantiate host module %s: %w", ns.Name, err)
		}
		r.logger.Debug("Host module registered",
			zap.String("namespace", ns.Name),
			zap.Int("functions", len(ns.Functions)),
		)
	}
	return nil
}

// Provides reports whether namespace exports a function called name.
func (r *Registrar) Provides(namespace, name string) bool {
	for _, ns := range r.namespaces {
		if ns.Name == namespace {
			_, ok := ns.Lookup(name)
			return ok
		}
	}
	return false
}

// Namespaces returns the registered surface.
func (r *Registrar) Namespaces() []hostfn.Namespace {
	return r.namespaces
}

// Bind routes host calls from the instance named id to s.
func (r *Registrar) Bind(id string, s *hostfn.Session) {
	r.sessions.Store(id, s)
}

// Unbind forgets the instance named id.
func (r *Registrar) Unbind(id string) {
	r.sessions.Delete(id)
}

func (r *Registrar) session(id string) (*hostfn.Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*hostfn.Session), true
}

func (r *Registrar) wrap(namespace string, fn hostfn.Function) api.GoModuleFunc {
	call := fn.Call
	qualified := namespace + "." + fn.Name

	return func(ctx context.Context, mod api.Module, stack []uint64) {
		s, ok := r.session(mod.Name())
		if !ok {
			r.logger.Error("Host call from unbound module",
				zap.String("function", qualified),
				zap.String("module", mod.Name()),
			)
			panic(&HostFunctionError{FunctionName: qualified, Err: errUnboundModule})
		}
		if !s.Bound() {
			s.Bind(mod.Memory(), r.guestHeapBase(mod))
		}
		if r.trace {
			r.logger.Debug("Host call",
				zap.String("function", qualified),
				zap.String("module", mod.Name()),
			)
		}
		call(ctx, s, stack)
	}
}

// guestHeapBase reads the module's __heap_base export, falling back to the
// configured base.
func (r *Registrar) guestHeapBase(mod api.Module) uint32 {
	if g := mod.ExportedGlobal("__heap_base"); g != nil && g.Type() == api.ValueTypeI32 {
		if base := api.DecodeU32(g.Get()); base > 0 {
			return base
		}
	}
	return r.heapBase
}
