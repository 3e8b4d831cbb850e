package hostfn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/fetch"
	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

var (
	errNoURL       = errors.New("request has no url")
	errNetDisabled = errors.New("networking is not available to this plugin")
)

var methods = [...]string{
	abi.MethodGet:    http.MethodGet,
	abi.MethodPost:   http.MethodPost,
	abi.MethodHead:   http.MethodHead,
	abi.MethodPut:    http.MethodPut,
	abi.MethodDelete: http.MethodDelete,
}

type requestState int

const (
	stateConfigured requestState = iota
	stateSent
)

// request is one in-flight HTTP request and, once sent, its outcome.
type request struct {
	state  requestState
	method string
	url    string
	header http.Header
	body   []byte

	resp   *fetch.Response
	err    error
	cursor int
}

func (r *request) completed() bool {
	return r.state == stateSent && r.resp != nil
}

func (r *request) remaining() int {
	if !r.completed() {
		return -1
	}
	return len(r.resp.Body) - r.cursor
}

// Net is the HTTP namespace.
type Net struct {
	s *Session
}

func (n *Net) configurable(h int32) (*request, bool) {
	r, ok := n.s.requests.Read(h)
	if !ok || r.state != stateConfigured {
		return nil, false
	}
	return r, true
}

// Init creates a request. Unknown method codes fall back to GET.
func (n *Net) Init(method int32) int32 {
	m := http.MethodGet
	if method >= 0 && int(method) < len(methods) {
		m = methods[method]
	}
	return n.s.requests.Store(&request{method: m, header: make(http.Header)})
}

func (n *Net) SetURL(h, ptr, length int32) {
	r, ok := n.configurable(h)
	if !ok {
		return
	}
	if u, ok := n.s.readString(ptr, length); ok {
		r.url = u
	}
}

func (n *Net) SetHeader(h, keyPtr, keyLen, valPtr, valLen int32) {
	r, ok := n.configurable(h)
	if !ok {
		return
	}
	key, ok := n.s.readString(keyPtr, keyLen)
	if !ok || key == "" {
		return
	}
	val, ok := n.s.readString(valPtr, valLen)
	if !ok {
		return
	}
	r.header.Set(key, val)
}

func (n *Net) SetBody(h, ptr, length int32) {
	r, ok := n.configurable(h)
	if !ok {
		return
	}
	if body, ok := n.s.readBytes(ptr, length); ok {
		r.body = body
	}
}

type outcome struct {
	resp *fetch.Response
	err  error
}

// Send performs the request and blocks until it completes. HTTP error
// statuses count as success; only a missing response fails.
func (n *Net) Send(ctx context.Context, h int32) int32 {
	r, ok := n.configurable(h)
	if !ok {
		return handle.Invalid
	}
	r.state = stateSent

	switch {
	case r.url == "":
		r.err = errNoURL
	case n.s.transport == nil:
		r.err = errNetDisabled
	}
	if r.err != nil {
		n.s.logger.Debug("Request not sent", zap.Error(r.err))
		return handle.Invalid
	}

	if !n.s.allowRequest() {
		n.s.logger.Warn("Request rate limited", zap.String("url", r.url))
		r.resp = &fetch.Response{
			URL:        r.url,
			StatusCode: http.StatusTooManyRequests,
			Header:     make(http.Header),
		}
		return 0
	}

	req := &fetch.Request{Method: r.method, URL: r.url, Header: r.header, Body: r.body}
	done := make(chan outcome, 1)
	go func() {
		resp, err := n.s.transport.Do(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()
	res := <-done

	if res.err != nil {
		r.err = res.err
		n.s.logger.Warn("Request failed", zap.String("url", r.url), zap.Error(res.err))
		return handle.Invalid
	}
	r.resp = res.resp
	return 0
}

// Close discards the request in any state.
func (n *Net) Close(h int32) {
	n.s.requests.Destroy(h)
}

// GetURL returns the final URL of a completed request, or the configured
// URL before that, as a std string handle.
func (n *Net) GetURL(h int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok {
		return handle.Invalid
	}
	u := r.url
	if r.resp != nil && r.resp.URL != "" {
		u = r.resp.URL
	}
	if u == "" {
		return handle.Invalid
	}
	return n.s.std.Store(value.String(u))
}

// GetDataSize returns the number of unread body bytes, or -1.
func (n *Net) GetDataSize(h int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok {
		return handle.Invalid
	}
	return int32(r.remaining())
}

// GetData copies exactly size unread body bytes to buf and advances the
// cursor. Asking for more than remains fails and leaves the cursor alone.
func (n *Net) GetData(h, buf, size int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok {
		return handle.Invalid
	}
	if size <= 0 || int(size) > r.remaining() {
		return handle.Invalid
	}
	chunk := r.resp.Body[r.cursor : r.cursor+int(size)]
	if !n.s.writeBytes(buf, chunk) {
		return handle.Invalid
	}
	r.cursor += int(size)
	return 0
}

func (n *Net) GetStatusCode(h int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok || !r.completed() {
		return handle.Invalid
	}
	return int32(r.resp.StatusCode)
}

// GetHeader returns a response header as a std string handle.
func (n *Net) GetHeader(h, keyPtr, keyLen int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok || !r.completed() {
		return handle.Invalid
	}
	key, ok := n.s.readString(keyPtr, keyLen)
	if !ok {
		return handle.Invalid
	}
	vals := r.resp.Header.Values(key)
	if len(vals) == 0 {
		return handle.Invalid
	}
	return n.s.std.Store(value.String(vals[0]))
}

// JSON parses the response body into the json namespace.
func (n *Net) JSON(h int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok || !r.completed() || len(r.resp.Body) == 0 {
		return handle.Invalid
	}
	return n.s.JSON.parse(r.resp.Body)
}

// HTML parses the response body into the html namespace, resolving links
// against the final URL.
func (n *Net) HTML(h int32) int32 {
	r, ok := n.s.requests.Read(h)
	if !ok || !r.completed() || len(r.resp.Body) == 0 {
		return handle.Invalid
	}
	return n.s.HTML.parse(r.resp.Body, r.resp.URL)
}

// SetRateLimit allows limit requests per period. Zero or less disables
// limiting.
func (n *Net) SetRateLimit(limit int32) {
	n.s.rateLimit = int(limit)
	n.s.resetLimiter()
}

// SetRateLimitPeriod sets the period in seconds.
func (n *Net) SetRateLimitPeriod(seconds int32) {
	if seconds <= 0 {
		return
	}
	n.s.ratePeriod = time.Duration(seconds) * time.Second
	n.s.resetLimiter()
}

var netFunctions = []Function{
	def("init", "method:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.Init(argI32(st, 0)))
	}),
	def("send", "handle:i32 -> i32", func(ctx context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.Send(ctx, argI32(st, 0)))
	}),
	def("close", "handle:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.Close(argI32(st, 0))
	}),
	def("set_url", "handle:i32 url:i32 url_len:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.SetURL(argI32(st, 0), argI32(st, 1), argI32(st, 2))
	}),
	def("set_header", "handle:i32 key:i32 key_len:i32 value:i32 value_len:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.SetHeader(argI32(st, 0), argI32(st, 1), argI32(st, 2), argI32(st, 3), argI32(st, 4))
	}),
	def("set_body", "handle:i32 body:i32 body_len:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.SetBody(argI32(st, 0), argI32(st, 1), argI32(st, 2))
	}),
	def("get_url", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.GetURL(argI32(st, 0)))
	}),
	def("get_data_size", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.GetDataSize(argI32(st, 0)))
	}),
	def("get_data", "handle:i32 buf:i32 size:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.GetData(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
	def("get_status_code", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.GetStatusCode(argI32(st, 0)))
	}),
	def("get_header", "handle:i32 key:i32 key_len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.GetHeader(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
	}),
	def("json", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.JSON(argI32(st, 0)))
	}),
	def("html", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Net.HTML(argI32(st, 0)))
	}),
	def("set_rate_limit", "limit:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.SetRateLimit(argI32(st, 0))
	}),
	def("set_rate_limit_period", "seconds:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Net.SetRateLimitPeriod(argI32(st, 0))
	}),
}

// PutRequest stores an unsent request on behalf of the host, so a plugin
// export can adjust it before the host performs it.
func (s *Session) PutRequest(method, rawURL string, header http.Header) int32 {
	if header == nil {
		header = make(http.Header)
	}
	return s.requests.Store(&request{method: method, url: rawURL, header: header.Clone()})
}

// TakeRequest removes a request and returns it as the plugin left it.
func (s *Session) TakeRequest(h int32) (*fetch.Request, bool) {
	r, ok := s.requests.Read(h)
	if !ok {
		return nil, false
	}
	s.requests.Destroy(h)
	return &fetch.Request{
		Method: r.method,
		URL:    r.url,
		Header: r.header,
		Body:   r.body,
	}, true
}
