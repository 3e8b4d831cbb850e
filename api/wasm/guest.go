//go:build wasm

package wasm

import (
	"errors"
	"unsafe"

	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// ErrRequest reports a request the host could not send.
var ErrRequest = errors.New("request failed")

func strArgs(s string) (int32, int32) {
	if s == "" {
		return 0, 0
	}
	return int32(uintptr(unsafe.Pointer(unsafe.StringData(s)))), int32(len(s))
}

func bytesArgs(b []byte) (int32, int32) {
	if len(b) == 0 {
		return 0, 0
	}
	return int32(uintptr(unsafe.Pointer(unsafe.SliceData(b)))), int32(len(b))
}

// Print writes s to the host log.
func Print(s string) {
	envPrint(strArgs(s))
}

// Value is a std handle.
type Value int32

// Valid reports whether the host returned a handle.
func (v Value) Valid() bool { return int32(v) != abi.Invalid }

func Null() Value { return Value(stdCreateNull()) }
func Int(i int64) Value { return Value(stdCreateInt(i)) }
func Float(f float32) Value { return Value(stdCreateFloat(f)) }
func String(s string) Value { return Value(stdCreateString(strArgs(s))) }
func NewArray() Value { return Value(stdCreateArray()) }
func NewObject() Value { return Value(stdCreateObject()) }
func (v Value) Copy() Value { return Value(stdCopy(int32(v))) }
func (v Value) Destroy() { stdDestroy(int32(v)) }
func (v Value) Kind() abi.Kind { return abi.Kind(stdTypeof(int32(v))) }
func (v Value) Int() int64 { return stdReadInt(int32(v)) }
func (v Value) Float() float64 { return stdReadFloat(int32(v)) }
func (v Value) Bool() bool { return stdReadBool(int32(v)) != 0 }
func (v Value) Len() int { return int(stdArrayLen(int32(v))) }
func (v Value) At(i int) Value { return Value(stdArrayGet(int32(v), int32(i))) }
func (v Value) Append(item Value) {
	stdArrayAppend(int32(v), int32(item))
}

func Bool(b bool) Value {
	if b {
		return Value(stdCreateBool(1))
	}
	return Value(stdCreateBool(0))
}

// Str reads a string value. Non-strings read as "".
func (v Value) Str() string {
	n := stdStringLen(int32(v))
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	ptr, size := bytesArgs(buf)
	stdReadString(int32(v), ptr, size)
	return string(buf)
}

// Get returns field key of an object.
func (v Value) Get(key string) Value {
	ptr, n := strArgs(key)
	return Value(stdObjectGet(int32(v), ptr, n))
}

// Set stores field key of an object.
func (v Value) Set(key string, field Value) {
	ptr, n := strArgs(key)
	stdObjectSet(int32(v), ptr, n, int32(field))
}

// ParseJSON decodes data into a std value.
func ParseJSON(data []byte) Value {
	return Value(jsonParse(bytesArgs(data)))
}

// Default reads a setting, falling back to the manifest default.
func Default(key string) Value {
	return Value(defaultsGet(strArgs(key)))
}

// SetDefault persists a setting.
func SetDefault(key string, v Value) {
	ptr, n := strArgs(key)
	defaultsSet(ptr, n, int32(v))
}

// Node is an html handle: a document, an element or a selection.
type Node int32

// ParseHTML parses a document.
func ParseHTML(data []byte) Node {
	return Node(htmlParse(bytesArgs(data)))
}

func (n Node) Select(selector string) Node {
	ptr, l := strArgs(selector)
	return Node(htmlSelect(int32(n), ptr, l))
}

func (n Node) Attr(name string) string {
	ptr, l := strArgs(name)
	v := Value(htmlAttr(int32(n), ptr, l))
	defer v.Destroy()
	return v.Str()
}

func (n Node) Text() string {
	v := Value(htmlText(int32(n)))
	defer v.Destroy()
	return v.Str()
}

func (n Node) Len() int { return int(htmlArraySize(int32(n))) }
func (n Node) At(i int) Node { return Node(htmlArrayGet(int32(n), int32(i))) }
func (n Node) Free() { htmlFree(int32(n)) }

// Request is a net handle.
type Request int32

// NewRequest starts a request for url.
func NewRequest(method abi.Method, url string) Request {
	r := Request(netInit(int32(method)))
	ptr, n := strArgs(url)
	netSetURL(int32(r), ptr, n)
	return r
}

func (r Request) SetHeader(key, value string) {
	kp, kl := strArgs(key)
	vp, vl := strArgs(value)
	netSetHeader(int32(r), kp, kl, vp, vl)
}

func (r Request) SetBody(body []byte) {
	ptr, n := bytesArgs(body)
	netSetBody(int32(r), ptr, n)
}

// Send performs the request. HTTP error statuses are not errors; check
// Status.
func (r Request) Send() error {
	if netSend(int32(r)) != 0 {
		return ErrRequest
	}
	return nil
}

func (r Request) Status() int { return int(netGetStatusCode(int32(r))) }
func (r Request) JSON() Value { return Value(netJSON(int32(r))) }
func (r Request) HTML() Node { return Node(netHTML(int32(r))) }
func (r Request) Close() { netClose(int32(r)) }

// Data reads the unread part of the response body.
func (r Request) Data() []byte {
	size := netGetDataSize(int32(r))
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	ptr, n := bytesArgs(buf)
	if netGetData(int32(r), ptr, n) != 0 {
		return nil
	}
	return buf
}

// Manga is the guest view of aidoku.manga.
type Manga struct {
	ID, Cover, Title, Author, Artist, Description, URL string

	Tags   []string
	Status abi.MangaStatus
	Rating abi.ContentRating
	Viewer abi.Viewer
}

// Build hands m to the host and returns its result index.
func (m *Manga) Build() int32 {
	ptrs := make([]int32, len(m.Tags))
	lens := make([]int32, len(m.Tags))
	for i, t := range m.Tags {
		ptrs[i], lens[i] = strArgs(t)
	}
	var tagPtrs, tagLens int32
	if len(m.Tags) > 0 {
		tagPtrs = int32(uintptr(unsafe.Pointer(&ptrs[0])))
		tagLens = int32(uintptr(unsafe.Pointer(&lens[0])))
	}

	idP, idL := strArgs(m.ID)
	coverP, coverL := strArgs(m.Cover)
	titleP, titleL := strArgs(m.Title)
	authorP, authorL := strArgs(m.Author)
	artistP, artistL := strArgs(m.Artist)
	descP, descL := strArgs(m.Description)
	urlP, urlL := strArgs(m.URL)
	return aidokuManga(idP, idL, coverP, coverL, titleP, titleL,
		authorP, authorL, artistP, artistL, descP, descL, urlP, urlL,
		tagPtrs, tagLens, int32(len(m.Tags)),
		int32(m.Status), int32(m.Rating), int32(m.Viewer))
}

// Chapter is the guest view of aidoku.chapter. Volume and Number are -1
// when unknown; DateUploaded is in Unix seconds.
type Chapter struct {
	ID, Title, Scanlator, URL, Lang string

	Volume, Number float32
	DateUploaded   float64
}

// Build hands c to the host and returns its result index.
func (c *Chapter) Build() int32 {
	idP, idL := strArgs(c.ID)
	titleP, titleL := strArgs(c.Title)
	scanP, scanL := strArgs(c.Scanlator)
	urlP, urlL := strArgs(c.URL)
	langP, langL := strArgs(c.Lang)
	return aidokuChapter(idP, idL, titleP, titleL, c.Volume, c.Number, c.DateUploaded,
		scanP, scanL, urlP, urlL, langP, langL)
}

// Page builds one page record from an image URL.
func Page(index int, imageURL string) int32 {
	ptr, n := strArgs(imageURL)
	return aidokuPage(int32(index), ptr, n, 0, 0, 0, 0)
}

// MangaResult builds a page of results from manga result indices.
func MangaResult(items []int32, hasMore bool) int32 {
	ptr, n := int32(0), int32(len(items))
	if n > 0 {
		ptr = int32(uintptr(unsafe.Pointer(&items[0])))
	}
	more := int32(0)
	if hasMore {
		more = 1
	}
	return aidokuMangaResult(ptr, n, more)
}
