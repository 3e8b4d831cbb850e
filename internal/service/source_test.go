package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/sourcehost/internal/config"
	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/plugin"
	"github.com/woxQAQ/sourcehost/internal/wasm"
	"github.com/woxQAQ/sourcehost/internal/wasmtest"
)

const testManifest = `id: en.test
name: Test Source
version: 1
language: en
wasm:
  file: main.wasm
capabilities: [std, aidoku, net, defaults]
listings:
  - name: Popular
  - name: Latest
`

const emptyManifest = `id: en.empty
name: Empty Source
version: 1
language: en
wasm:
  file: main.wasm
capabilities: [std]
`

// sourceModule is a plugin implementing every source export against fixed
// data.
func sourceModule(t *testing.T) []byte {
	b := wasmtest.New(t)
	manga := b.Host("aidoku", "manga")
	mangaResult := b.Host("aidoku", "manga_result")
	chapter := b.Host("aidoku", "chapter")
	page := b.Host("aidoku", "page")
	arrayLen := b.Host("std", "array_len")
	objectGet := b.Host("std", "object_get")
	stringLen := b.Host("std", "string_len")
	setHeader := b.Host("net", "set_header")
	setDefault := b.Host("defaults", "set")

	m1p, m1l := b.Str(16, "m1")
	m2p, m2l := b.Str(24, "m2")
	firstP, firstL := b.Str(32, "First")
	secondP, secondL := b.Str(40, "Second")
	c1p, c1l := b.Str(56, "c1")
	c2p, c2l := b.Str(64, "c2")
	enP, enL := b.Str(72, "en")
	imgP, imgL := b.Str(80, "https://img.example.com/1.jpg")
	nameP, nameL := b.Str(112, "name")
	refKeyP, refKeyL := b.Str(120, "Referer")
	refP, refL := b.Str(128, "https://example.com/")
	notifiedP, notifiedL := b.Str(152, "notified")
	// Buffer indices 0 and 1, little endian.
	items, _ := b.Str(168, "\x00\x00\x00\x00\x01\x00\x00\x00")

	mangaArgs := func(idP, idL, titleP, titleL int32) []byte {
		return wasmtest.Args(idP, idL, 0, 0, titleP, titleL,
			0, 0, 0, 0, 0, 0, 0, 0, // author, artist, description, url
			0, 0, 0, // tags
			1, 0, 0, // ongoing, safe, default viewer
		)
	}
	chapterArgs := func(idP, idL int32, num float32) []byte {
		var code []byte
		code = append(code, wasmtest.Args(idP, idL, 0, 0)...)
		code = append(code, wasmtest.F32Const(-1)...)
		code = append(code, wasmtest.F32Const(num)...)
		code = append(code, wasmtest.F64Const(0)...)
		return append(code, wasmtest.Args(0, 0, 0, 0, enP, enL)...)
	}

	i32 := wasmtest.I32
	types := wasmtest.Types
	call := wasmtest.Call
	drop := wasmtest.Drop
	i32LtS := []byte{0x48}
	i32Eq := []byte{0x46}

	b.Export("initialize", nil, nil, nil)

	// has_more = page < len(filters)
	b.Export("get_manga_list", types(i32, i32), types(i32), nil,
		mangaArgs(m1p, m1l, firstP, firstL), call(manga), drop(),
		mangaArgs(m2p, m2l, secondP, secondL), call(manga), drop(),
		wasmtest.Args(items, 2),
		wasmtest.LocalGet(1), wasmtest.LocalGet(0), call(arrayLen), i32LtS,
		call(mangaResult),
	)

	// has_more = len(listing.name) == 7
	b.Export("get_manga_listing", types(i32, i32), types(i32), nil,
		mangaArgs(m1p, m1l, firstP, firstL), call(manga), drop(),
		wasmtest.Args(items, 1),
		wasmtest.LocalGet(0), wasmtest.Args(nameP, nameL), call(objectGet), call(stringLen),
		wasmtest.I32Const(7), i32Eq,
		call(mangaResult),
	)

	// Returns the first of two records.
	b.Export("get_manga_details", types(i32), types(i32), types(i32),
		mangaArgs(m1p, m1l, firstP, firstL), call(manga), wasmtest.LocalSet(1),
		mangaArgs(m2p, m2l, secondP, secondL), call(manga), drop(),
		wasmtest.LocalGet(1),
	)

	b.Export("get_chapter_list", types(i32), types(i32), nil,
		chapterArgs(c1p, c1l, 1), call(chapter), drop(),
		chapterArgs(c2p, c2l, 2), call(chapter), drop(),
		wasmtest.I32Const(-1),
	)

	b.Export("get_page_list", types(i32), types(i32), nil,
		wasmtest.Args(0, imgP, imgL, 0, 0, 0, 0), call(page), drop(),
		wasmtest.Args(1, imgP, imgL, 0, 0, 0, 0), call(page), drop(),
		wasmtest.I32Const(0),
	)

	b.Export("modify_image_request", types(i32), nil, nil,
		wasmtest.LocalGet(0), wasmtest.Args(refKeyP, refKeyL, refP, refL), call(setHeader),
	)

	b.Export("handle_url", types(i32), types(i32), types(i32),
		mangaArgs(m2p, m2l, secondP, secondL), call(manga), wasmtest.LocalSet(1),
		chapterArgs(c2p, c2l, 2), call(chapter), drop(),
		wasmtest.LocalGet(1),
	)

	b.Export("handle_notification", types(i32), nil, nil,
		wasmtest.Args(notifiedP, notifiedL), wasmtest.LocalGet(0), call(setDefault),
	)

	return b.Bytes()
}

func emptyModule(t *testing.T) []byte {
	b := wasmtest.New(t)
	b.Export("initialize", nil, nil, nil)
	return b.Bytes()
}

func writePlugin(t *testing.T, root, name, manifest string, wasmBytes []byte) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.wasm"), wasmBytes, 0o644))
}

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.PluginPaths = []string{root}
	cfg.Settings.Driver = "memory"
	cfg.Net.UserAgent = "sourcehost-test"
	return cfg
}

func newTestHost(t *testing.T) *Host {
	t.Helper()
	root := t.TempDir()
	writePlugin(t, root, "test", testManifest, sourceModule(t))
	writePlugin(t, root, "empty", emptyManifest, emptyModule(t))

	ctx := context.Background()
	host, err := NewHost(ctx, testConfig(t, root), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { host.Close(ctx) })
	return host
}

func openSource(t *testing.T, host *Host, id string) *Source {
	t.Helper()
	src, err := host.Open(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close(context.Background()) })
	return src
}

func TestSource_GetMangaList(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")
	ctx := context.Background()

	filters := []*domain.Filter{
		{Kind: domain.FilterTitle, Name: "Title", Text: "one"},
		{Kind: domain.FilterAuthor, Name: "Author"},
	}

	first, err := src.GetMangaList(ctx, filters, 1)
	require.NoError(t, err)
	require.Len(t, first.Manga, 2)
	assert.Equal(t, "m1", first.Manga[0].ID)
	assert.Equal(t, "First", first.Manga[0].Title)
	assert.Equal(t, "en.test", first.Manga[0].SourceID)
	assert.Equal(t, domain.StatusOngoing, first.Manga[0].Status)
	assert.Equal(t, "m2", first.Manga[1].ID)
	assert.True(t, first.HasMore)

	second, err := src.GetMangaList(ctx, filters, 2)
	require.NoError(t, err)
	assert.False(t, second.HasMore)

	assert.Zero(t, src.Instance().Stats().StdHandles, "input handles are released")
}

func TestSource_GetMangaListing(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")
	ctx := context.Background()

	listings := src.Listings()
	require.Len(t, listings, 2)

	popular, err := src.GetMangaListing(ctx, listings[0], 1)
	require.NoError(t, err)
	require.Len(t, popular.Manga, 1)
	assert.True(t, popular.HasMore, "the plugin read the listing name")

	latest, err := src.GetMangaListing(ctx, listings[1], 1)
	require.NoError(t, err)
	assert.False(t, latest.HasMore)
}

func TestSource_GetMangaDetails(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")

	manga, err := src.GetMangaDetails(context.Background(), &domain.Manga{SourceID: "en.test", ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", manga.ID, "the returned index wins over the last record")
	assert.Equal(t, "First", manga.Title)
	assert.Zero(t, src.Instance().Stats().StdHandles)
}

func TestSource_GetChapterList(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")

	chapters, err := src.GetChapterList(context.Background(), &domain.Manga{ID: "m9"})
	require.NoError(t, err)
	require.Len(t, chapters, 2)

	for i, c := range chapters {
		assert.Equal(t, "m9", c.MangaID)
		assert.Equal(t, i, c.SourceOrder)
		assert.Equal(t, "en", c.Lang)
		assert.Nil(t, c.Volume)
		assert.Nil(t, c.DateUploaded)
		require.NotNil(t, c.Chapter)
		assert.Equal(t, float32(i+1), *c.Chapter)
	}
	assert.Equal(t, "c1", chapters[0].ID)
	assert.Equal(t, "c2", chapters[1].ID)
}

func TestSource_GetPageList(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")

	pages, err := src.GetPageList(context.Background(), &domain.Chapter{ID: "c1"})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, 1, pages[1].Index)
	assert.Equal(t, "https://img.example.com/1.jpg", pages[1].ImageURL)
}

func TestSource_GetImageRequest(t *testing.T) {
	host := newTestHost(t)
	ctx := context.Background()

	t.Run("modified", func(t *testing.T) {
		src := openSource(t, host, "en.test")

		req, err := src.GetImageRequest(ctx, "https://img.example.com/1.jpg")
		require.NoError(t, err)
		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, "https://img.example.com/1.jpg", req.URL)
		assert.Equal(t, "https://example.com/", req.Header.Get("Referer"))
		assert.Equal(t, "sourcehost-test", req.Header.Get("User-Agent"))
		assert.Zero(t, src.Instance().Stats().Requests)
	})

	t.Run("without export", func(t *testing.T) {
		src := openSource(t, host, "en.empty")

		req, err := src.GetImageRequest(ctx, "https://img.example.com/2.jpg")
		require.NoError(t, err)
		assert.Equal(t, "https://img.example.com/2.jpg", req.URL)
		assert.Empty(t, req.Header.Get("Referer"))
		assert.Equal(t, "sourcehost-test", req.Header.Get("User-Agent"))
	})

	t.Run("empty url", func(t *testing.T) {
		src := openSource(t, host, "en.test")

		req, err := src.GetImageRequest(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, req.URL)
	})
}

func TestSource_HandleURL(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.test")

	link, err := src.HandleURL(context.Background(), "https://example.com/manga/m2/c2")
	require.NoError(t, err)
	require.NotNil(t, link.Manga)
	assert.Equal(t, "m2", link.Manga.ID)
	require.NotNil(t, link.Chapter)
	assert.Equal(t, "c2", link.Chapter.ID)
	assert.Equal(t, "m2", link.Chapter.MangaID)
}

func TestSource_HandleNotification(t *testing.T) {
	host := newTestHost(t)
	ctx := context.Background()

	src := openSource(t, host, "en.test")
	require.NoError(t, src.HandleNotification(ctx, "system.reload"))

	v, ok, err := host.Plugins().Settings().Get(ctx, "en.test", "notified")
	require.NoError(t, err)
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "system.reload", s)

	empty := openSource(t, host, "en.empty")
	assert.NoError(t, empty.HandleNotification(ctx, "system.reload"), "missing handler is ignored")
}

func TestSource_MissingExport(t *testing.T) {
	src := openSource(t, newTestHost(t), "en.empty")

	_, err := src.GetMangaDetails(context.Background(), &domain.Manga{ID: "m1"})

	var notFound *wasm.FunctionNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "get_manga_details", notFound.FunctionName)
}
