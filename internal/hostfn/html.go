package hostfn

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/handle"
)

type nodeKind int

const (
	kindDocument nodeKind = iota
	kindNodeList
	kindNode
	kindText
)

// node is one entry of the html table.
type node struct {
	kind nodeKind
	sel  *goquery.Selection
	base *url.URL
	text string
}

// HTML parses documents and runs CSS selectors over them.
type HTML struct {
	s *Session
}

// Parse parses the document at (ptr, length).
func (n *HTML) Parse(ptr, length int32) int32 {
	data, ok := n.s.readBytes(ptr, length)
	if !ok {
		return handle.Invalid
	}
	return n.parse(data, "")
}

// parse stores a document whose relative links resolve against baseURL.
func (n *HTML) parse(data []byte, baseURL string) int32 {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		n.s.logger.Debug("HTML parse failed", zap.Error(err))
		return handle.Invalid
	}

	var base *url.URL
	if baseURL != "" {
		base, _ = url.Parse(baseURL)
	}
	doc.Url = base
	return n.s.html.Store(&node{kind: kindDocument, sel: doc.Selection, base: base})
}

// Select runs a CSS selector and returns a node list owned by h. An invalid
// selector matches nothing.
func (n *HTML) Select(h, selPtr, selLen int32) int32 {
	nd, ok := n.s.html.Read(h)
	if !ok || nd.sel == nil {
		return handle.Invalid
	}
	selector, ok := n.s.readString(selPtr, selLen)
	if !ok {
		return handle.Invalid
	}
	found := nd.sel.Find(selector)
	return n.s.html.StoreOwned(&node{kind: kindNodeList, sel: found, base: nd.base}, h)
}

// Attr reads an attribute. On a node list the first node carrying the
// attribute wins. An "abs:" prefix resolves the value against the
// document URL.
func (n *HTML) Attr(h, namePtr, nameLen int32) int32 {
	nd, ok := n.s.html.Read(h)
	if !ok || nd.sel == nil {
		return handle.Invalid
	}
	name, ok := n.s.readString(namePtr, nameLen)
	if !ok {
		return handle.Invalid
	}

	absolute := false
	if rest, found := strings.CutPrefix(name, "abs:"); found {
		name, absolute = rest, true
	}

	var attr string
	for i := range nd.sel.Nodes {
		if v, exists := nd.sel.Eq(i).Attr(name); exists {
			attr = v
			break
		}
	}
	if absolute && attr != "" {
		attr = resolve(nd.base, attr)
	}
	return n.s.html.StoreOwned(&node{kind: kindText, text: attr}, h)
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

// Text writes the whitespace-normalized text of h, NUL terminated, into
// freshly allocated guest memory and returns its address, or 0.
func (n *HTML) Text(h int32) int32 {
	nd, ok := n.s.html.Read(h)
	if !ok {
		return 0
	}

	var text string
	if nd.kind == kindText {
		text = nd.text
	} else {
		text = strings.Join(strings.Fields(nd.sel.Text()), " ")
	}

	buf := make([]byte, len(text)+1)
	copy(buf, text)
	return int32(n.s.place(buf))
}

// ArraySize returns the number of nodes in a node list.
func (n *HTML) ArraySize(h int32) int32 {
	nd, ok := n.s.html.Read(h)
	if !ok || nd.kind != kindNodeList {
		return handle.Invalid
	}
	return int32(nd.sel.Length())
}

// ArrayGet returns the node at index as a handle owned by the list.
func (n *HTML) ArrayGet(h, index int32) int32 {
	nd, ok := n.s.html.Read(h)
	if !ok || nd.kind != kindNodeList {
		return handle.Invalid
	}
	if index < 0 || int(index) >= nd.sel.Length() {
		return handle.Invalid
	}
	return n.s.html.StoreOwned(&node{kind: kindNode, sel: nd.sel.Eq(int(index)), base: nd.base}, h)
}

// Free destroys h and everything derived from it.
func (n *HTML) Free(h int32) {
	n.s.html.Destroy(h)
}

var htmlFunctions = []Function{
	def("scraper_parse", "ptr:i32 len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.Parse(argI32(st, 0), argI32(st, 1)))
	}),
	def("scraper_select", "handle:i32 selector:i32 selector_len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.Select(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
	def("scraper_attr", "handle:i32 name:i32 name_len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.Attr(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
	def("scraper_text", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.Text(argI32(st, 0)))
	}),
	def("scraper_array_size", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.ArraySize(argI32(st, 0)))
	}),
	def("scraper_array_get", "handle:i32 index:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.HTML.ArrayGet(argI32(st, 0), argI32(st, 1)))
	}),
	def("scraper_free", "handle:i32", func(_ context.Context, s *Session, st []uint64) {
		s.HTML.Free(argI32(st, 0))
	}),
}
