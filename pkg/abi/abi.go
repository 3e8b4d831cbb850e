package abi

// Guest ABI for sourcehost plugins.
// This package defines the names and numeric codes shared by the host and
// guest SDKs. Changing any value here breaks compiled plugins.

// Invalid is the failure sentinel returned by every handle-producing host
// function.
const Invalid int32 = -1

// Host module namespaces a plugin may import from.
const (
	NamespaceStd      = "std"
	NamespaceJSON     = "json"
	NamespaceHTML     = "html"
	NamespaceNet      = "net"
	NamespaceDefaults = "defaults"
	NamespaceAidoku   = "aidoku"
	// NamespaceEnv is granted to every plugin.
	NamespaceEnv = "env"
)

// Namespaces lists every namespace in registration order.
func Namespaces() []string {
	return []string{
		NamespaceStd,
		NamespaceJSON,
		NamespaceHTML,
		NamespaceNet,
		NamespaceDefaults,
		NamespaceAidoku,
		NamespaceEnv,
	}
}

// Functions a source plugin exports. Only initialize is called without
// being asked for; the rest are invoked on demand and may be absent.
const (
	ExportInitialize         = "initialize"
	ExportGetMangaList       = "get_manga_list"
	ExportGetMangaListing    = "get_manga_listing"
	ExportGetMangaDetails    = "get_manga_details"
	ExportGetChapterList     = "get_chapter_list"
	ExportGetPageList        = "get_page_list"
	ExportModifyImageRequest = "modify_image_request"
	ExportHandleURL          = "handle_url"
	ExportHandleNotification = "handle_notification"
)

// Kind is the value kind reported by std.typeof.
type Kind int32

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindArray
	KindObject
	KindDate
)

// Method is the request method code passed to net.init.
type Method int32

const (
	MethodGet Method = iota
	MethodPost
	MethodHead
	MethodPut
	MethodDelete
)

// FilterKind is the kind argument of aidoku.filter.
type FilterKind int32

const (
	FilterText FilterKind = iota
	FilterTitle
	FilterAuthor
	FilterCheck
	FilterGenre
	FilterSelect
	FilterSort
	FilterSortSelection
	FilterGroup
	FilterOption
)

// MangaStatus is the status argument of aidoku.manga.
type MangaStatus int32

const (
	StatusUnknown MangaStatus = iota
	StatusOngoing
	StatusCompleted
	StatusCancelled
	StatusHiatus
)

// ContentRating is the nsfw argument of aidoku.manga.
type ContentRating int32

const (
	RatingSafe ContentRating = iota
	RatingSuggestive
	RatingNSFW
)

// Viewer is the viewer argument of aidoku.manga.
type Viewer int32

const (
	ViewerDefault Viewer = iota
	ViewerRTL
	ViewerLTR
	ViewerVertical
	ViewerScroll
)
