// Package hostfn implements the host functions plugins import: the std,
// json, html, net, defaults, aidoku and env namespaces.
//
// All state lives in a Session, one per module instance. Host functions are
// only ever called from the instance's own goroutine, one at a time, so a
// Session needs no locking.
package hostfn

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/guest"
	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/settings"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// Transport performs HTTP requests for the net namespace.
type Transport interface {
	Do(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// Options configures a Session.
type Options struct {
	// PluginID scopes settings and is stamped on every manga and chapter.
	PluginID string
	// Settings backs the defaults namespace. Nil keeps settings in memory.
	Settings settings.Store
	// Defaults are returned by defaults.get for keys that were never set.
	Defaults map[string]value.Value
	// Transport backs the net namespace. Nil disables networking.
	Transport Transport
	// RateLimit and RatePeriod seed the net rate limit; plugins may change
	// them at run time.
	RateLimit  int
	RatePeriod time.Duration
}

// Session is the host-side state of one module instance.
type Session struct {
	pluginID string
	logger   *zap.Logger

	mem  guest.Memory
	heap *guest.Heap

	std      *handle.Table[value.Value]
	json     *handle.Table[value.Value]
	html     *handle.Table[*node]
	requests *handle.Table[*request]

	results domain.Buffer

	settings  settings.Store
	defaults  map[string]value.Value
	transport Transport

	rateLimit  int
	ratePeriod time.Duration
	limiter    *rate.Limiter

	mangaID      string
	chapterOrder int

	Std      *Std
	JSON     *JSON
	HTML     *HTML
	Net      *Net
	Defaults *Defaults
	Aidoku   *Aidoku
	Env      *Env
}

// NewSession creates the state for one module instance. Bind must be called
// with the instance's memory before any host function runs.
func NewSession(opts Options, logger *zap.Logger) *Session {
	store := opts.Settings
	if store == nil {
		store = settings.NewMemoryStore()
	}
	period := opts.RatePeriod
	if period <= 0 {
		period = time.Minute
	}

	s := &Session{
		pluginID:   opts.PluginID,
		logger:     logger.With(zap.String("component", "hostfn"), zap.String("plugin", opts.PluginID)),
		std:        handle.NewTable[value.Value](),
		json:       handle.NewTable[value.Value](),
		html:       handle.NewTable[*node](),
		requests:   handle.NewTable[*request](),
		settings:   store,
		defaults:   opts.Defaults,
		transport:  opts.Transport,
		rateLimit:  opts.RateLimit,
		ratePeriod: period,
	}
	s.resetLimiter()

	s.Std = &Std{space{s: s, table: s.std, name: "std"}}
	s.JSON = &JSON{space{s: s, table: s.json, name: "json"}}
	s.HTML = &HTML{s: s}
	s.Net = &Net{s: s}
	s.Defaults = &Defaults{s: s}
	s.Aidoku = &Aidoku{s: s}
	s.Env = &Env{s: s}
	return s
}

// Bind attaches the instance's linear memory. Allocations made on behalf of
// the guest start at heapBase.
func (s *Session) Bind(mem guest.Memory, heapBase uint32) {
	s.mem = mem
	s.heap = guest.NewHeap(mem, heapBase, s.logger)
}

// Bound reports whether Bind has been called.
func (s *Session) Bound() bool {
	return s.mem != nil
}

// PluginID returns the id of the plugin this session serves.
func (s *Session) PluginID() string {
	return s.pluginID
}

// Heap returns the guest allocator, or nil before Bind.
func (s *Session) Heap() *guest.Heap {
	return s.heap
}

// SetMangaID sets the manga that chapters built from now on belong to.
func (s *Session) SetMangaID(id string) {
	s.mangaID = id
}

// BeginCall clears the result buffer before a new guest call.
func (s *Session) BeginCall() {
	s.results.Reset()
	s.chapterOrder = 0
}

// Results drains the records built during the current call.
func (s *Session) Results() []domain.Object {
	return s.results.Drain()
}

// Result returns the buffered record at index i without draining.
func (s *Session) Result(i int32) (domain.Object, bool) {
	return s.results.Get(i)
}

// PutValue stores v in the std table so its handle can be passed to a guest
// export.
func (s *Session) PutValue(v value.Value) int32 {
	return s.std.Store(v)
}

// Value reads a std handle, for example one returned by a guest export.
func (s *Session) Value(h int32) (value.Value, bool) {
	return s.std.Read(h)
}

// DropValue destroys a std handle and everything it owns.
func (s *Session) DropValue(h int32) {
	s.std.Destroy(h)
}

// Stats counts live host resources.
type Stats struct {
	StdHandles  int
	JSONHandles int
	HTMLHandles int
	Requests    int
	HeapBlocks  int
}

// Stats returns the number of live handles per table and heap blocks.
func (s *Session) Stats() Stats {
	st := Stats{
		StdHandles:  s.std.Len(),
		JSONHandles: s.json.Len(),
		HTMLHandles: s.html.Len(),
		Requests:    s.requests.Len(),
	}
	if s.heap != nil {
		st.HeapBlocks = s.heap.Live()
	}
	return st
}

// Close drops every handle the session holds.
func (s *Session) Close() {
	s.std.Reset()
	s.json.Reset()
	s.html.Reset()
	s.requests.Reset()
	s.results.Reset()
}

func (s *Session) readString(ptr, length int32) (string, bool) {
	if s.mem == nil {
		return "", false
	}
	str, ok := guest.ReadString(s.mem, ptr, length)
	if !ok {
		s.logger.Debug("Invalid string argument",
			zap.Int32("ptr", ptr),
			zap.Int32("length", length),
		)
	}
	return str, ok
}

func (s *Session) readOptional(ptr, length int32) string {
	if s.mem == nil {
		return ""
	}
	str, _ := guest.ReadOptionalString(s.mem, ptr, length)
	return str
}

func (s *Session) readBytes(ptr, length int32) ([]byte, bool) {
	if s.mem == nil {
		return nil, false
	}
	return guest.ReadBytes(s.mem, ptr, length)
}

func (s *Session) writeBytes(ptr int32, data []byte) bool {
	if s.mem == nil {
		return false
	}
	return guest.WriteBytes(s.mem, ptr, data)
}

// allocate reserves guest memory. Exhaustion aborts the running guest call.
func (s *Session) allocate(size uint32) uint32 {
	if s.heap == nil {
		panic(&guest.HeapExhaustedError{Requested: size})
	}
	addr, err := s.heap.Allocate(size)
	if err != nil {
		s.logger.Error("Guest allocation failed", zap.Error(err))
		panic(err)
	}
	return addr
}

// place copies data into freshly allocated guest memory.
func (s *Session) place(data []byte) uint32 {
	addr := s.allocate(uint32(len(data)))
	if len(data) > 0 && !s.mem.Write(addr, data) {
		panic(&guest.HeapExhaustedError{Requested: uint32(len(data))})
	}
	return addr
}

func (s *Session) resetLimiter() {
	if s.rateLimit <= 0 {
		s.limiter = nil
		return
	}
	every := s.ratePeriod / time.Duration(s.rateLimit)
	s.limiter = rate.NewLimiter(rate.Every(every), s.rateLimit)
}

func (s *Session) allowRequest() bool {
	return s.limiter == nil || s.limiter.Allow()
}
