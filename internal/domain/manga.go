// Package domain holds the records plugins build through the aidoku
// namespace, and the per-call buffer that collects them.
package domain

import (
	"fmt"
	"time"

	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// MangaStatus is the publishing status of a series.
type MangaStatus int32

const (
	StatusUnknown   = MangaStatus(abi.StatusUnknown)
	StatusOngoing   = MangaStatus(abi.StatusOngoing)
	StatusCompleted = MangaStatus(abi.StatusCompleted)
	StatusCancelled = MangaStatus(abi.StatusCancelled)
	StatusHiatus    = MangaStatus(abi.StatusHiatus)
)

// ContentRating classifies how suitable a series is for all audiences.
type ContentRating int32

const (
	RatingSafe       = ContentRating(abi.RatingSafe)
	RatingSuggestive = ContentRating(abi.RatingSuggestive)
	RatingNSFW       = ContentRating(abi.RatingNSFW)
)

var ratingNames = [...]string{"safe", "suggestive", "nsfw"}

func (r ContentRating) String() string {
	if r < 0 || int(r) >= len(ratingNames) {
		return fmt.Sprintf("ContentRating(%d)", int32(r))
	}
	return ratingNames[r]
}

// Viewer is the preferred reading mode.
type Viewer int32

const (
	ViewerDefault  = Viewer(abi.ViewerDefault)
	ViewerRTL      = Viewer(abi.ViewerRTL)
	ViewerLTR      = Viewer(abi.ViewerLTR)
	ViewerVertical = Viewer(abi.ViewerVertical)
	ViewerScroll   = Viewer(abi.ViewerScroll)
)

// Manga describes one series.
type Manga struct {
	SourceID      string        `yaml:"source_id"`
	ID            string        `yaml:"id"`
	Title         string        `yaml:"title,omitempty"`
	Author        string        `yaml:"author,omitempty"`
	Artist        string        `yaml:"artist,omitempty"`
	Description   string        `yaml:"description,omitempty"`
	Tags          []string      `yaml:"tags,omitempty"`
	CoverURL      string        `yaml:"cover_url,omitempty"`
	URL           string        `yaml:"url,omitempty"`
	Status        MangaStatus   `yaml:"status"`
	ContentRating ContentRating `yaml:"content_rating"`
	Viewer        Viewer        `yaml:"viewer"`
}

var mangaFields = []string{
	"sourceId", "id", "title", "author", "artist", "description",
	"tags", "cover", "url", "status", "nsfw", "viewer",
}

func (m *Manga) FieldNames() []string { return mangaFields }

func (m *Manga) Field(name string) (value.Value, bool) {
	switch name {
	case "sourceId":
		return value.String(m.SourceID), true
	case "id":
		return value.String(m.ID), true
	case "title":
		return optionalString(m.Title), true
	case "author":
		return optionalString(m.Author), true
	case "artist":
		return optionalString(m.Artist), true
	case "description":
		return optionalString(m.Description), true
	case "tags":
		return value.Strings(m.Tags), true
	case "cover":
		return optionalString(m.CoverURL), true
	case "url":
		return optionalString(m.URL), true
	case "status":
		return value.Int(int64(m.Status)), true
	case "nsfw":
		return value.Int(int64(m.ContentRating)), true
	case "viewer":
		return value.Int(int64(m.Viewer)), true
	}
	return value.Value{}, false
}

// Chapter is one chapter of a series. Optional numeric fields are nil when
// the plugin did not supply them.
type Chapter struct {
	SourceID     string     `yaml:"source_id"`
	ID           string     `yaml:"id"`
	MangaID      string     `yaml:"manga_id,omitempty"`
	Title        string     `yaml:"title,omitempty"`
	Scanlator    string     `yaml:"scanlator,omitempty"`
	Lang         string     `yaml:"lang"`
	Chapter      *float32   `yaml:"chapter,omitempty"`
	Volume       *float32   `yaml:"volume,omitempty"`
	DateUploaded *time.Time `yaml:"date_uploaded,omitempty"`
	URL          string     `yaml:"url,omitempty"`
	SourceOrder  int        `yaml:"source_order"`
}

var chapterFields = []string{
	"sourceId", "id", "mangaId", "title", "scanlator", "lang",
	"chapterNum", "volumeNum", "dateUploaded", "url", "sourceOrder",
}

func (c *Chapter) FieldNames() []string { return chapterFields }

func (c *Chapter) Field(name string) (value.Value, bool) {
	switch name {
	case "sourceId":
		return value.String(c.SourceID), true
	case "id":
		return value.String(c.ID), true
	case "mangaId":
		return optionalString(c.MangaID), true
	case "title":
		return optionalString(c.Title), true
	case "scanlator":
		return optionalString(c.Scanlator), true
	case "lang":
		return value.String(c.Lang), true
	case "chapterNum", "chapter":
		return optionalFloat(c.Chapter), true
	case "volumeNum", "volume":
		return optionalFloat(c.Volume), true
	case "dateUploaded":
		if c.DateUploaded == nil {
			return value.Null(), true
		}
		return value.Date(*c.DateUploaded), true
	case "url":
		return optionalString(c.URL), true
	case "sourceOrder":
		return value.Int(int64(c.SourceOrder)), true
	}
	return value.Value{}, false
}

// Page is one image or text page of a chapter.
type Page struct {
	Index    int    `yaml:"index"`
	ImageURL string `yaml:"image_url,omitempty"`
	Base64   string `yaml:"base64,omitempty"`
	Text     string `yaml:"text,omitempty"`
}

var pageFields = []string{"index", "imageUrl", "base64", "text"}

func (p *Page) FieldNames() []string { return pageFields }

func (p *Page) Field(name string) (value.Value, bool) {
	switch name {
	case "index":
		return value.Int(int64(p.Index)), true
	case "imageUrl":
		return optionalString(p.ImageURL), true
	case "base64":
		return optionalString(p.Base64), true
	case "text":
		return optionalString(p.Text), true
	}
	return value.Value{}, false
}

// Listing is a named catalog view offered by a source, such as "Popular".
type Listing struct {
	Name  string `yaml:"name"`
	Flags int32  `yaml:"flags,omitempty"`
}

var listingFields = []string{"name", "flags"}

func (l *Listing) FieldNames() []string { return listingFields }

func (l *Listing) Field(name string) (value.Value, bool) {
	switch name {
	case "name":
		return value.String(l.Name), true
	case "flags":
		return value.Int(int64(l.Flags)), true
	}
	return value.Value{}, false
}

// MangaPageResult is one page of catalog results.
type MangaPageResult struct {
	Manga   []*Manga `yaml:"manga"`
	HasMore bool     `yaml:"has_more"`
}

var resultFields = []string{"manga", "hasMore"}

func (r *MangaPageResult) FieldNames() []string { return resultFields }

func (r *MangaPageResult) Field(name string) (value.Value, bool) {
	switch name {
	case "manga":
		items := make([]value.Value, len(r.Manga))
		for i, m := range r.Manga {
			items[i] = value.Host(m)
		}
		return value.Array(items...), true
	case "hasMore":
		return value.Bool(r.HasMore), true
	}
	return value.Value{}, false
}

func optionalString(s string) value.Value {
	if s == "" {
		return value.Null()
	}
	return value.String(s)
}

func optionalFloat(f *float32) value.Value {
	if f == nil {
		return value.Null()
	}
	return value.Float(float64(*f))
}
