package hostfn

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/guest"
	"github.com/woxQAQ/sourcehost/internal/handle"
)

// Aidoku builds domain records. Each constructor appends to the session's
// result buffer and returns the record's index.
type Aidoku struct {
	s *Session
}

// indices reads a guest array of buffer indices.
func (n *Aidoku) indices(ptr, count int32) ([]int32, bool) {
	if count == 0 {
		return nil, true
	}
	if n.s.mem == nil {
		return nil, false
	}
	return guest.ReadInt32s(n.s.mem, ptr, count)
}

func (n *Aidoku) filterAt(i int32) (*domain.Filter, bool) {
	obj, ok := n.s.results.Get(i)
	if !ok {
		return nil, false
	}
	f, ok := obj.(*domain.Filter)
	return f, ok
}

// Filter builds a filter. For composite kinds the items array holds the
// indices of earlier records: children of a group, options of a select or
// sort.
func (n *Aidoku) Filter(kind, namePtr, nameLen, val, def, itemsPtr, itemsLen int32) int32 {
	k := domain.FilterKind(kind)
	if !k.Valid() {
		return handle.Invalid
	}
	name, ok := n.s.readString(namePtr, nameLen)
	if !ok {
		return handle.Invalid
	}
	items, ok := n.indices(itemsPtr, itemsLen)
	if !ok {
		return handle.Invalid
	}

	f := &domain.Filter{Kind: k, Name: name}
	switch k {
	case domain.FilterCheck, domain.FilterGenre:
		f.CanExclude = def != 0
		if val >= 0 {
			state := min(val, 1)
			f.State = &state
		}
	case domain.FilterSelect:
		if f.Options, ok = n.optionNames(items); !ok {
			return handle.Invalid
		}
		f.Selected = val
		f.Default = def
	case domain.FilterSort:
		if f.Options, ok = n.optionNames(items); !ok {
			return handle.Invalid
		}
		f.CanAscend = def != 0
		if val >= 0 {
			sel, ok := n.filterAt(val)
			if !ok || sel.Kind != domain.FilterSortSelection {
				return handle.Invalid
			}
			f.Sort = sel
		}
	case domain.FilterSortSelection:
		f.Index = val
		f.Ascending = def != 0
	case domain.FilterGroup:
		for _, i := range items {
			child, ok := n.filterAt(i)
			if !ok {
				return handle.Invalid
			}
			f.Filters = append(f.Filters, child)
		}
	}
	return n.s.results.Append(f)
}

func (n *Aidoku) optionNames(items []int32) ([]string, bool) {
	names := make([]string, 0, len(items))
	for _, i := range items {
		opt, ok := n.filterAt(i)
		if !ok || opt.Kind != domain.FilterOption {
			return nil, false
		}
		names = append(names, opt.Name)
	}
	return names, true
}

// Listing builds a named catalog listing.
func (n *Aidoku) Listing(namePtr, nameLen, flags int32) int32 {
	name, ok := n.s.readString(namePtr, nameLen)
	if !ok || name == "" {
		return handle.Invalid
	}
	return n.s.results.Append(&domain.Listing{Name: name, Flags: flags})
}

// MangaArgs are the raw arguments of aidoku.manga.
type MangaArgs struct {
	ID, IDLen                   int32
	Cover, CoverLen             int32
	Title, TitleLen             int32
	Author, AuthorLen           int32
	Artist, ArtistLen           int32
	Description, DescriptionLen int32
	URL, URLLen                 int32
	Tags, TagLens, TagCount     int32
	Status, NSFW, Viewer        int32
}

// Manga builds a manga record. The id is required.
func (n *Aidoku) Manga(a MangaArgs) int32 {
	id, ok := n.s.readString(a.ID, a.IDLen)
	if !ok || id == "" {
		return handle.Invalid
	}

	var tags []string
	if a.TagCount > 0 && n.s.mem != nil {
		if tags, ok = guest.ReadStrings(n.s.mem, a.Tags, a.TagLens, a.TagCount); !ok {
			n.s.logger.Debug("Ignoring unreadable manga tags", zap.String("id", id))
			tags = nil
		}
	}

	m := &domain.Manga{
		SourceID:      n.s.pluginID,
		ID:            id,
		CoverURL:      n.s.readOptional(a.Cover, a.CoverLen),
		Title:         n.s.readOptional(a.Title, a.TitleLen),
		Author:        n.s.readOptional(a.Author, a.AuthorLen),
		Artist:        n.s.readOptional(a.Artist, a.ArtistLen),
		Description:   n.s.readOptional(a.Description, a.DescriptionLen),
		URL:           n.s.readOptional(a.URL, a.URLLen),
		Tags:          tags,
		Status:        domain.StatusUnknown,
		ContentRating: domain.RatingSafe,
		Viewer:        domain.ViewerDefault,
	}
	if a.Status >= int32(domain.StatusUnknown) && a.Status <= int32(domain.StatusHiatus) {
		m.Status = domain.MangaStatus(a.Status)
	}
	if a.NSFW >= int32(domain.RatingSafe) && a.NSFW <= int32(domain.RatingNSFW) {
		m.ContentRating = domain.ContentRating(a.NSFW)
	}
	if a.Viewer >= int32(domain.ViewerDefault) && a.Viewer <= int32(domain.ViewerScroll) {
		m.Viewer = domain.Viewer(a.Viewer)
	}
	return n.s.results.Append(m)
}

// ChapterArgs are the raw arguments of aidoku.chapter.
type ChapterArgs struct {
	ID, IDLen               int32
	Name, NameLen           int32
	Volume, Chapter         float32
	DateUploaded            float64
	Scanlator, ScanlatorLen int32
	URL, URLLen             int32
	Lang, LangLen           int32
}

// Chapter builds a chapter of the current manga. Negative numbers and
// non-positive dates mean the field is absent.
func (n *Aidoku) Chapter(a ChapterArgs) int32 {
	id, ok := n.s.readString(a.ID, a.IDLen)
	if !ok || id == "" {
		return handle.Invalid
	}

	c := &domain.Chapter{
		SourceID:    n.s.pluginID,
		ID:          id,
		MangaID:     n.s.mangaID,
		Title:       n.s.readOptional(a.Name, a.NameLen),
		Scanlator:   n.s.readOptional(a.Scanlator, a.ScanlatorLen),
		URL:         n.s.readOptional(a.URL, a.URLLen),
		Lang:        n.s.readOptional(a.Lang, a.LangLen),
		Chapter:     present(a.Chapter),
		Volume:      present(a.Volume),
		SourceOrder: n.s.chapterOrder,
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if a.DateUploaded > 0 && !math.IsInf(a.DateUploaded, 0) {
		t := fromEpoch(a.DateUploaded)
		c.DateUploaded = &t
	}
	n.s.chapterOrder++
	return n.s.results.Append(c)
}

func present(f float32) *float32 {
	if f < 0 || math.IsNaN(float64(f)) {
		return nil
	}
	return &f
}

// Page builds a chapter page.
func (n *Aidoku) Page(index, imagePtr, imageLen, b64Ptr, b64Len, textPtr, textLen int32) int32 {
	if index < 0 {
		return handle.Invalid
	}
	return n.s.results.Append(&domain.Page{
		Index:    int(index),
		ImageURL: n.s.readOptional(imagePtr, imageLen),
		Base64:   n.s.readOptional(b64Ptr, b64Len),
		Text:     n.s.readOptional(textPtr, textLen),
	})
}

// MangaResult groups earlier manga records into one page of results.
func (n *Aidoku) MangaResult(itemsPtr, itemsLen, hasMore int32) int32 {
	items, ok := n.indices(itemsPtr, itemsLen)
	if !ok {
		return handle.Invalid
	}
	res := &domain.MangaPageResult{HasMore: hasMore != 0}
	for _, i := range items {
		obj, ok := n.s.results.Get(i)
		if !ok {
			return handle.Invalid
		}
		m, ok := obj.(*domain.Manga)
		if !ok {
			return handle.Invalid
		}
		res.Manga = append(res.Manga, m)
	}
	return n.s.results.Append(res)
}

var aidokuFunctions = []Function{
	def("filter", "kind:i32 name:i32 name_len:i32 value:i32 default:i32 items:i32 items_len:i32 -> i32",
		func(_ context.Context, s *Session, st []uint64) {
			retI32(st, s.Aidoku.Filter(
				argI32(st, 0), argI32(st, 1), argI32(st, 2), argI32(st, 3),
				argI32(st, 4), argI32(st, 5), argI32(st, 6),
			))
		}),
	def("listing", "name:i32 name_len:i32 flags:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Aidoku.Listing(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
	def("manga", "id:i32 id_len:i32 cover:i32 cover_len:i32 title:i32 title_len:i32 "+
		"author:i32 author_len:i32 artist:i32 artist_len:i32 description:i32 description_len:i32 "+
		"url:i32 url_len:i32 tags:i32 tag_lens:i32 tag_count:i32 status:i32 nsfw:i32 viewer:i32 -> i32",
		func(_ context.Context, s *Session, st []uint64) {
			retI32(st, s.Aidoku.Manga(MangaArgs{
				ID: argI32(st, 0), IDLen: argI32(st, 1),
				Cover: argI32(st, 2), CoverLen: argI32(st, 3),
				Title: argI32(st, 4), TitleLen: argI32(st, 5),
				Author: argI32(st, 6), AuthorLen: argI32(st, 7),
				Artist: argI32(st, 8), ArtistLen: argI32(st, 9),
				Description: argI32(st, 10), DescriptionLen: argI32(st, 11),
				URL: argI32(st, 12), URLLen: argI32(st, 13),
				Tags: argI32(st, 14), TagLens: argI32(st, 15), TagCount: argI32(st, 16),
				Status: argI32(st, 17), NSFW: argI32(st, 18), Viewer: argI32(st, 19),
			}))
		}),
	def("chapter", "id:i32 id_len:i32 name:i32 name_len:i32 volume:f32 chapter:f32 date_uploaded:f64 "+
		"scanlator:i32 scanlator_len:i32 url:i32 url_len:i32 lang:i32 lang_len:i32 -> i32",
		func(_ context.Context, s *Session, st []uint64) {
			retI32(st, s.Aidoku.Chapter(ChapterArgs{
				ID: argI32(st, 0), IDLen: argI32(st, 1),
				Name: argI32(st, 2), NameLen: argI32(st, 3),
				Volume: argF32(st, 4), Chapter: argF32(st, 5),
				DateUploaded: argF64(st, 6),
				Scanlator:    argI32(st, 7), ScanlatorLen: argI32(st, 8),
				URL: argI32(st, 9), URLLen: argI32(st, 10),
				Lang: argI32(st, 11), LangLen: argI32(st, 12),
			}))
		}),
	def("page", "index:i32 image_url:i32 image_url_len:i32 base64:i32 base64_len:i32 text:i32 text_len:i32 -> i32",
		func(_ context.Context, s *Session, st []uint64) {
			retI32(st, s.Aidoku.Page(
				argI32(st, 0), argI32(st, 1), argI32(st, 2), argI32(st, 3),
				argI32(st, 4), argI32(st, 5), argI32(st, 6),
			))
		}),
	def("manga_result", "items:i32 items_len:i32 has_more:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Aidoku.MangaResult(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
}
