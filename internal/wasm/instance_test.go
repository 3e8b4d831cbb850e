package wasm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/guest"
	"github.com/woxQAQ/sourcehost/internal/hostfn"
	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/internal/wasmtest"
)

type harness struct {
	t       *testing.T
	runtime *Runtime
	loader  *ModuleLoader
	manager *InstanceManager
}

func newHarness(t *testing.T, config *RuntimeConfig) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	runtime, err := NewRuntime(context.Background(), logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close(context.Background()) })

	return &harness{
		t:       t,
		runtime: runtime,
		loader:  NewModuleLoader(runtime, logger),
		manager: NewInstanceManager(runtime, logger),
	}
}

func (h *harness) compile(name string, b *wasmtest.Builder) {
	h.t.Helper()
	_, err := h.loader.LoadModuleFromMemory(context.Background(), name, b.Bytes())
	require.NoError(h.t, err)
}

func (h *harness) instantiate(b *wasmtest.Builder, config InstanceConfig) (*Instance, error) {
	h.t.Helper()
	if config.ModuleName == "" {
		config.ModuleName = h.t.Name()
	}
	if _, ok := h.runtime.GetCompiledModule(config.ModuleName); !ok {
		h.compile(config.ModuleName, b)
	}
	return h.manager.Instantiate(context.Background(), &config)
}

func (h *harness) mustInstantiate(b *wasmtest.Builder, config InstanceConfig) *Instance {
	h.t.Helper()
	inst, err := h.instantiate(b, config)
	require.NoError(h.t, err)
	return inst
}

func TestInstance_FetchAndReadJSON(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":1},{"id":2},{"id":3}],"hasMore":false}`))
	}))
	defer srv.Close()

	client, err := fetch.NewClient("test", fetch.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	b := newModule(t)
	initReq := b.Host("net", "init")
	setURL := b.Host("net", "set_url")
	send := b.Host("net", "send")
	netJSON := b.Host("net", "json")
	objectGet := b.Host("json", "json_object_get")
	arrayLen := b.Host("json", "json_array_len")

	urlPtr, urlLen := b.Str(16, srv.URL+"/list")
	keyPtr, keyLen := b.Str(1024, "items")

	// local 0 holds the request handle.
	b.Export("count_items", nil, types(i32), types(i32),
		i32Const(0), call(initReq), localSet(0),
		localGet(0), args(urlPtr, urlLen), call(setURL),
		localGet(0), call(send), drop(),
		localGet(0), call(netJSON),
		args(keyPtr, keyLen), call(objectGet),
		call(arrayLen),
	)

	h := newHarness(t, nil)
	inst := h.mustInstantiate(b, InstanceConfig{
		Namespaces: []string{"net", "json"},
		Session:    hostfn.Options{PluginID: "en.test", Transport: client},
	})

	res, err := inst.Call(context.Background(), "count_items")
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	assert.Equal(t, int32(3), api.DecodeI32(res.Values[0]))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, res.Objects)

	st := inst.Stats()
	assert.Equal(t, 1, st.Requests)
	assert.Positive(t, st.JSONHandles)
}

func TestInstance_ChapterRecords(t *testing.T) {
	b := newModule(t)
	chapter := b.Host("aidoku", "chapter")
	idPtr, idLen := b.Str(16, "ch-1")
	namePtr, nameLen := b.Str(32, "Pilot")
	urlPtr, urlLen := b.Str(64, "https://example.com/ch-1")

	b.Export("chapters", nil, types(i32), nil,
		args(idPtr, idLen, namePtr, nameLen),
		f32Const(1), f32Const(2.5), f64Const(1700000000),
		args(0, 0, urlPtr, urlLen, 0, 0),
		call(chapter),
	)

	h := newHarness(t, nil)
	inst := h.mustInstantiate(b, InstanceConfig{
		Session: hostfn.Options{PluginID: "en.test"},
	})
	inst.SetMangaID("manga-7")

	for range 2 {
		res, err := inst.Call(context.Background(), "chapters")
		require.NoError(t, err)

		// The result buffer starts empty on every call.
		assert.Equal(t, int32(0), api.DecodeI32(res.Values[0]))
		require.Len(t, res.Objects, 1)

		ch, ok := res.Objects[0].(*domain.Chapter)
		require.True(t, ok)
		assert.Equal(t, "en.test", ch.SourceID)
		assert.Equal(t, "ch-1", ch.ID)
		assert.Equal(t, "manga-7", ch.MangaID)
		assert.Equal(t, "Pilot", ch.Title)
		assert.Equal(t, "https://example.com/ch-1", ch.URL)
		assert.Equal(t, "en", ch.Lang)
		assert.Empty(t, ch.Scanlator)
		require.NotNil(t, ch.Volume)
		assert.Equal(t, float32(1), *ch.Volume)
		require.NotNil(t, ch.Chapter)
		assert.Equal(t, float32(2.5), *ch.Chapter)
		require.NotNil(t, ch.DateUploaded)
		assert.Equal(t, int64(1700000000), ch.DateUploaded.Unix())
	}
}

func TestInstance_HostValuesAcrossTheBoundary(t *testing.T) {
	b := newModule(t)
	objectGet := b.Host("std", "object_get")
	stringLen := b.Host("std", "string_len")
	createString := b.Host("std", "create_string")
	keyPtr, keyLen := b.Str(16, "title")
	helloPtr, helloLen := b.Str(32, "hello")

	b.Export("title_len", types(i32), types(i32), nil,
		localGet(0), args(keyPtr, keyLen), call(objectGet),
		call(stringLen),
	)
	b.Export("greeting", nil, types(i32), nil,
		args(helloPtr, helloLen), call(createString),
	)

	h := newHarness(t, nil)
	inst := h.mustInstantiate(b, InstanceConfig{Namespaces: []string{"std"}})

	manga := inst.PutValue(value.Host(&domain.Manga{ID: "1", Title: "Solo Leveling"}))
	res, err := inst.Call(context.Background(), "title_len", api.EncodeI32(manga))
	require.NoError(t, err)
	assert.Equal(t, int32(13), api.DecodeI32(res.Values[0]))

	res, err = inst.Call(context.Background(), "greeting")
	require.NoError(t, err)
	v, ok := inst.Value(api.DecodeI32(res.Values[0]))
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "hello", s)
}

func TestInstance_HeapBase(t *testing.T) {
	build := func(t *testing.T, heapBase int32) *wasmtest.Builder {
		b := newModule(t)
		b.HeapBase = heapBase
		malloc := b.Host("env", "malloc")
		b.Export("alloc", nil, types(i32), nil, i32Const(24), call(malloc))
		return b
	}

	t.Run("exported", func(t *testing.T) {
		h := newHarness(t, nil)
		inst := h.mustInstantiate(build(t, 4096), InstanceConfig{})

		res, err := inst.Call(context.Background(), "alloc")
		require.NoError(t, err)
		assert.Equal(t, int32(4096), api.DecodeI32(res.Values[0]))
	})

	t.Run("configured", func(t *testing.T) {
		config := DefaultRuntimeConfig()
		config.HeapBase = 8192
		h := newHarness(t, config)
		inst := h.mustInstantiate(build(t, 0), InstanceConfig{})

		res, err := inst.Call(context.Background(), "alloc")
		require.NoError(t, err)
		assert.Equal(t, int32(8192), api.DecodeI32(res.Values[0]))

		res, err = inst.Call(context.Background(), "alloc")
		require.NoError(t, err)
		assert.Equal(t, int32(8192+24), api.DecodeI32(res.Values[0]))
	})
}

func TestInstance_HeapExhaustionTraps(t *testing.T) {
	b := newModule(t)
	malloc := b.Host("env", "malloc")
	b.Export("greedy", nil, types(i32), nil, i32Const(0x7ffffff0), call(malloc))

	config := DefaultRuntimeConfig()
	config.MemoryPages = 4
	h := newHarness(t, config)
	inst := h.mustInstantiate(b, InstanceConfig{})

	_, err := inst.Call(context.Background(), "greedy")

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "greedy", callErr.FunctionName)

	var exhausted *guest.HeapExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestInstance_Timeout(t *testing.T) {
	b := newModule(t)
	b.Export("spin", nil, nil, nil, loopForever())

	config := DefaultRuntimeConfig()
	config.ExecutionTimeout = 50 * time.Millisecond
	h := newHarness(t, config)
	inst := h.mustInstantiate(b, InstanceConfig{})

	_, err := inst.Call(context.Background(), "spin")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Duration)
}

func TestInstance_ImportValidation(t *testing.T) {
	t.Run("namespace not granted", func(t *testing.T) {
		b := newModule(t)
		b.Host("net", "init")

		h := newHarness(t, nil)
		_, err := h.instantiate(b, InstanceConfig{Namespaces: []string{"std"}})

		var importErr *ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, "net", importErr.Namespace)
		assert.Equal(t, "init", importErr.Function)
		assert.Equal(t, "namespace not granted", importErr.Reason)
		assert.Equal(t, 0, h.runtime.InstanceCount())
	})

	t.Run("unknown function", func(t *testing.T) {
		b := newModule(t)
		b.RawImport("std", "eval", types(i32, i32), types(i32))

		h := newHarness(t, nil)
		_, err := h.instantiate(b, InstanceConfig{})

		var importErr *ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, "no such host function", importErr.Reason)
	})

	t.Run("env always granted", func(t *testing.T) {
		b := newModule(t)
		b.Host("env", "print")

		h := newHarness(t, nil)
		_, err := h.instantiate(b, InstanceConfig{Namespaces: []string{}})
		assert.NoError(t, err)
	})
}

func TestInstance_RequiresMemory(t *testing.T) {
	b := newModule(t)
	b.NoMemory = true
	b.Export("noop", nil, nil, nil)

	h := newHarness(t, nil)
	_, err := h.instantiate(b, InstanceConfig{})

	var instErr *InstantiationError
	require.ErrorAs(t, err, &instErr)
	assert.ErrorIs(t, err, errNoMemory)
	assert.Equal(t, 0, h.runtime.InstanceCount())
}

func TestInstance_RequiresMemoryBeforeStart(t *testing.T) {
	b := newModule(t)
	b.NoMemory = true
	malloc := b.Host("env", "malloc")
	b.Export("_initialize", nil, nil, nil, i32Const(16), call(malloc), drop())

	h := newHarness(t, nil)
	_, err := h.instantiate(b, InstanceConfig{})

	var instErr *InstantiationError
	require.ErrorAs(t, err, &instErr)
	assert.ErrorIs(t, err, errNoMemory)
	assert.Equal(t, 0, h.runtime.InstanceCount())
}

func TestInstance_Exports(t *testing.T) {
	b := newModule(t)
	b.Export("get_manga_list", nil, nil, nil)
	b.Export("get_chapter_list", nil, nil, nil)

	h := newHarness(t, nil)
	inst := h.mustInstantiate(b, InstanceConfig{})

	assert.Equal(t, []string{"get_chapter_list", "get_manga_list"}, inst.Exports())
	assert.True(t, inst.HasExport("get_manga_list"))

	_, err := inst.Call(context.Background(), "get_page_list")
	var notFound *FunctionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "get_page_list", notFound.FunctionName)
}

func TestInstance_Lifecycle(t *testing.T) {
	b := newModule(t)
	b.Export("noop", nil, nil, nil)

	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	h := newHarness(t, config)

	first := h.mustInstantiate(b, InstanceConfig{})
	assert.Len(t, first.ID, 26, "instance ids are ULIDs")

	_, err := h.instantiate(b, InstanceConfig{})
	var limitErr *InstanceLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, limitErr.Limit)

	require.NoError(t, first.Close(context.Background()))
	require.NoError(t, first.Close(context.Background()))
	assert.Equal(t, 0, h.runtime.InstanceCount())

	second := h.mustInstantiate(b, InstanceConfig{InstanceID: "fixed"})
	assert.Equal(t, "fixed", second.ID)
	got, ok := h.runtime.GetInstance("fixed")
	require.True(t, ok)
	assert.Same(t, second, got)

	require.NoError(t, h.runtime.Close(context.Background()))
	assert.Equal(t, 0, h.runtime.InstanceCount())
}

func TestInstance_SessionsAreIsolated(t *testing.T) {
	b := newModule(t)
	createNull := b.Host("std", "create_null")
	b.Export("make", nil, types(i32), nil, call(createNull))

	h := newHarness(t, nil)
	a := h.mustInstantiate(b, InstanceConfig{})
	c := h.mustInstantiate(b, InstanceConfig{})

	for range 3 {
		_, err := a.Call(context.Background(), "make")
		require.NoError(t, err)
	}
	res, err := c.Call(context.Background(), "make")
	require.NoError(t, err)

	// Each instance numbers its handles from zero.
	assert.Equal(t, int32(0), api.DecodeI32(res.Values[0]))
	assert.Equal(t, 3, a.Stats().StdHandles)
	assert.Equal(t, 1, c.Stats().StdHandles)
}

func TestRegistrar_UnboundModuleTraps(t *testing.T) {
	b := newModule(t)
	createNull := b.Host("std", "create_null")
	b.Export("make", nil, types(i32), nil, call(createNull))

	h := newHarness(t, nil)
	inst := h.mustInstantiate(b, InstanceConfig{})
	h.runtime.Registrar().Unbind(inst.ID)

	_, err := inst.Call(context.Background(), "make")
	var hostErr *HostFunctionError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "std.create_null", hostErr.FunctionName)
	assert.True(t, errors.Is(err, errUnboundModule))
}
