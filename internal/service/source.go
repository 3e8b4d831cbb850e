package service

import (
	"context"
	"net/http"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/plugin"
	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/internal/wasm"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// Source is one running plugin instance behind typed calls. Host values
// are handed to exports as std handles and released after the call;
// results are read back from the records the plugin built.
type Source struct {
	plugin   *plugin.Plugin
	instance *wasm.Instance
	headers  func(rawURL string) http.Header
	logger   *zap.Logger
}

// DeepLink is what a plugin recognized in a URL.
type DeepLink struct {
	Manga   *domain.Manga   `yaml:"manga,omitempty"`
	Chapter *domain.Chapter `yaml:"chapter,omitempty"`
}

func newSource(p *plugin.Plugin, instance *wasm.Instance, headers func(string) http.Header, logger *zap.Logger) *Source {
	return &Source{
		plugin:   p,
		instance: instance,
		headers:  headers,
		logger: logger.With(
			zap.String("component", "source"),
			zap.String("plugin", p.ID()),
			zap.String("instance_id", instance.ID),
		),
	}
}

// ID returns the plugin id.
func (s *Source) ID() string {
	return s.plugin.ID()
}

// Plugin returns the loaded plugin this source runs.
func (s *Source) Plugin() *plugin.Plugin {
	return s.plugin
}

// Instance returns the underlying instance.
func (s *Source) Instance() *wasm.Instance {
	return s.instance
}

// Listings returns the listings the plugin declares.
func (s *Source) Listings() []domain.Listing {
	return s.plugin.Listings()
}

// invoke passes inputs as std handles followed by extra raw params, and
// returns the call result and the export's i32 return value.
func (s *Source) invoke(ctx context.Context, export string, inputs []value.Value, extra ...uint64) (*wasm.CallResult, int32, error) {
	params := make([]uint64, 0, len(inputs)+len(extra))
	for _, v := range inputs {
		h := s.instance.PutValue(v)
		defer s.instance.DropValue(h)
		params = append(params, api.EncodeI32(h))
	}
	params = append(params, extra...)

	res, err := s.instance.Call(ctx, export, params...)
	if err != nil {
		return nil, abi.Invalid, err
	}

	ret := abi.Invalid
	if len(res.Values) > 0 {
		ret = api.DecodeI32(res.Values[0])
	}
	return res, ret, nil
}

// at returns the record at buffer index i if it has type T.
func at[T domain.Object](objects []domain.Object, i int32) (T, bool) {
	var zero T
	if i < 0 || int(i) >= len(objects) {
		return zero, false
	}
	t, ok := objects[i].(T)
	return t, ok
}

// pageResult reads a manga page from a list export. The export returns
// the index of a manga_result record; without one, every manga built
// during the call forms a final page.
func pageResult(res *wasm.CallResult, ret int32) *domain.MangaPageResult {
	if r, ok := at[*domain.MangaPageResult](res.Objects, ret); ok {
		return r
	}
	return &domain.MangaPageResult{Manga: domain.Of[*domain.Manga](res.Objects)}
}

// GetMangaList searches the catalog with the given filters. Pages start
// at 1.
func (s *Source) GetMangaList(ctx context.Context, filters []*domain.Filter, page int) (*domain.MangaPageResult, error) {
	items := make([]value.Value, len(filters))
	for i, f := range filters {
		items[i] = value.Host(f)
	}

	res, ret, err := s.invoke(ctx, abi.ExportGetMangaList,
		[]value.Value{value.Array(items...)}, api.EncodeI32(int32(page)))
	if err != nil {
		return nil, err
	}
	return pageResult(res, ret), nil
}

// GetMangaListing returns one page of a named listing.
func (s *Source) GetMangaListing(ctx context.Context, listing domain.Listing, page int) (*domain.MangaPageResult, error) {
	res, ret, err := s.invoke(ctx, abi.ExportGetMangaListing,
		[]value.Value{value.Host(&listing)}, api.EncodeI32(int32(page)))
	if err != nil {
		return nil, err
	}
	return pageResult(res, ret), nil
}

// GetMangaDetails fetches the full record for manga.
func (s *Source) GetMangaDetails(ctx context.Context, manga *domain.Manga) (*domain.Manga, error) {
	res, ret, err := s.invoke(ctx, abi.ExportGetMangaDetails, []value.Value{value.Host(manga)})
	if err != nil {
		return nil, err
	}

	if m, ok := at[*domain.Manga](res.Objects, ret); ok {
		return m, nil
	}
	if all := domain.Of[*domain.Manga](res.Objects); len(all) > 0 {
		return all[len(all)-1], nil
	}
	return nil, &MissingResultError{PluginID: s.ID(), Export: abi.ExportGetMangaDetails, Want: "manga"}
}

// GetChapterList lists the chapters of manga in the order the plugin
// built them.
func (s *Source) GetChapterList(ctx context.Context, manga *domain.Manga) ([]*domain.Chapter, error) {
	s.instance.SetMangaID(manga.ID)
	defer s.instance.SetMangaID("")

	res, _, err := s.invoke(ctx, abi.ExportGetChapterList, []value.Value{value.Host(manga)})
	if err != nil {
		return nil, err
	}

	chapters := domain.Of[*domain.Chapter](res.Objects)
	for _, c := range chapters {
		if c.MangaID == "" {
			c.MangaID = manga.ID
		}
	}
	return chapters, nil
}

// GetPageList lists the pages of chapter.
func (s *Source) GetPageList(ctx context.Context, chapter *domain.Chapter) ([]*domain.Page, error) {
	res, _, err := s.invoke(ctx, abi.ExportGetPageList, []value.Value{value.Host(chapter)})
	if err != nil {
		return nil, err
	}
	return domain.Of[*domain.Page](res.Objects), nil
}

// GetImageRequest prepares the request for an image: the plugin's user
// agent and cookies, then whatever modify_image_request changes. Plugins
// without that export get the prepared request unchanged.
func (s *Source) GetImageRequest(ctx context.Context, rawURL string) (*fetch.Request, error) {
	if rawURL == "" {
		return &fetch.Request{Method: http.MethodGet, Header: make(http.Header)}, nil
	}

	var header http.Header
	if s.headers != nil {
		header = s.headers(rawURL)
	}
	h := s.instance.PutRequest(http.MethodGet, rawURL, header)

	if s.instance.HasExport(abi.ExportModifyImageRequest) {
		if _, err := s.instance.Call(ctx, abi.ExportModifyImageRequest, api.EncodeI32(h)); err != nil {
			s.instance.TakeRequest(h)
			return nil, err
		}
	}

	req, ok := s.instance.TakeRequest(h)
	if !ok {
		return nil, &MissingResultError{PluginID: s.ID(), Export: abi.ExportModifyImageRequest, Want: "request"}
	}
	return req, nil
}

// HandleURL asks the plugin what rawURL points at. The export returns the
// index of the manga; a chapter built in the same call narrows the link.
func (s *Source) HandleURL(ctx context.Context, rawURL string) (*DeepLink, error) {
	res, ret, err := s.invoke(ctx, abi.ExportHandleURL, []value.Value{value.String(rawURL)})
	if err != nil {
		return nil, err
	}

	link := &DeepLink{}
	if m, ok := at[*domain.Manga](res.Objects, ret); ok {
		link.Manga = m
	} else if all := domain.Of[*domain.Manga](res.Objects); len(all) > 0 {
		link.Manga = all[0]
	}
	if link.Manga == nil {
		return nil, &MissingResultError{PluginID: s.ID(), Export: abi.ExportHandleURL, Want: "manga"}
	}

	if chapters := domain.Of[*domain.Chapter](res.Objects); len(chapters) > 0 {
		link.Chapter = chapters[0]
		link.Chapter.MangaID = link.Manga.ID
	}
	return link, nil
}

// HandleNotification delivers a host notification, such as a settings
// change. Plugins that do not export the handler ignore it.
func (s *Source) HandleNotification(ctx context.Context, notification string) error {
	if !s.instance.HasExport(abi.ExportHandleNotification) {
		return nil
	}
	_, _, err := s.invoke(ctx, abi.ExportHandleNotification, []value.Value{value.String(notification)})
	if err != nil {
		s.logger.Warn("Notification handler failed",
			zap.String("notification", notification),
			zap.Error(err),
		)
	}
	return err
}

// Close stops the instance.
func (s *Source) Close(ctx context.Context) error {
	return s.instance.Close(ctx)
}
