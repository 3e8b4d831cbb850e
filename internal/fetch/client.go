// Package fetch performs the HTTP requests plugins issue through the net
// namespace.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	DefaultMaxURLLength    = 8192
	DefaultMaxBodySize     = 32 << 20 // 32MB
	DefaultRequestTimeout  = 30 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	MaxRedirects           = 10
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrHostNotAllowed is returned for URLs outside the plugin's allow-list.
	ErrHostNotAllowed = errors.New("host not allowed")
	// ErrInvalidURL is returned for missing, oversized or non-http URLs.
	ErrInvalidURL = errors.New("invalid url")
)

// Config controls a Client.
type Config struct {
	// UserAgent is sent when the plugin does not set one.
	UserAgent string
	// AllowedHosts restricts requests to these hosts and their subdomains.
	// Empty allows every host.
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	// BreakerFailures consecutive transport failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Request is an outgoing HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is one plugin's HTTP client. It owns a cookie jar and a circuit
// breaker, so plugins do not share sessions or failure state.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	logger  *zap.Logger
}

// NewClient creates a client named after the plugin it serves.
func NewClient(name string, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = DefaultBreakerTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	logger = logger.With(zap.String("component", "fetch"), zap.String("client", name))
	maxFailures := cfg.BreakerFailures

	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "fetch:" + name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Rejections before the network is touched say nothing about
			// the remote side.
			return err == nil || errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrHostNotAllowed)
		},
	})

	c := &Client{
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}
	c.http = &http.Client{
		Jar:           jar,
		Timeout:       cfg.RequestTimeout,
		CheckRedirect: c.checkRedirect,
	}
	return c, nil
}

// checkRedirect applies the URL checks to every hop, so an allowed host
// cannot redirect a plugin outside its allow-list.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	_, err := c.checkURL(req.URL.String())
	return err
}

// Do sends req and reads the whole body, capped at the configured size.
// HTTP error statuses are returned as responses, not errors.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.breaker.Execute(func() (*Response, error) {
		return c.do(ctx, req)
	})
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	parsed, err := c.checkURL(req.URL)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("HTTP request completed",
		zap.String("method", method),
		zap.String("url", parsed.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) checkURL(raw string) (*url.URL, error) {
	if raw == "" || len(raw) > c.cfg.MaxURLLength {
		return nil, ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !c.isHostAllowed(parsed.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Hostname())
	}
	return parsed, nil
}

func (c *Client) isHostAllowed(host string) bool {
	if len(c.cfg.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range c.cfg.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// ImageHeaders returns the headers an image fetch for rawURL should carry:
// the client's user agent and the cookies its jar holds for that URL.
func (c *Client) ImageHeaders(rawURL string) http.Header {
	header := make(http.Header)
	header.Set("User-Agent", c.cfg.UserAgent)

	u, err := url.Parse(rawURL)
	if err != nil || c.http.Jar == nil {
		return header
	}
	cookies := c.http.Jar.Cookies(u)
	if len(cookies) == 0 {
		return header
	}
	pairs := make([]string, len(cookies))
	for i, ck := range cookies {
		pairs[i] = ck.Name + "=" + ck.Value
	}
	header.Set("Cookie", strings.Join(pairs, "; "))
	return header
}
