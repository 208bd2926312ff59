// Package mediasite is a typed client for the Mediasite EdAS REST API.
//
// The API's "eq" filter behaves like a case-insensitive contains, so every
// lookup by name fetches candidates through the filter and then keeps only
// exact matches.
package mediasite

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mediasite-provisioning/internal/httpx"
	"mediasite-provisioning/internal/logging"
)

type Client struct {
	BaseURL  string
	Username string
	Password string
	APIKey   string
	HTTP     *http.Client
	Retry    httpx.RetryConfig
	Log      *zap.Logger
	Root     *RootFolderCache
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.Log = l }
}

// WithRootFolderCache shares a root folder cache between clients of one tenant.
func WithRootFolderCache(rc *RootFolderCache) Option {
	return func(c *Client) { c.Root = rc }
}

// WithRateLimit caps outgoing requests at r per second.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r > 0 {
			c.Retry = c.Retry.WithLimiter(rate.NewLimiter(rate.Limit(r), burst))
		}
	}
}

func WithRetry(cfg httpx.RetryConfig) Option {
	return func(c *Client) { c.Retry = cfg }
}

// New builds a client for the API rooted at baseURL, for example
// https://mediasite.example.edu/Mediasite/Api/v1.
func New(baseURL, username, password, apiKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		APIKey:   apiKey,
		Retry:    httpx.DefaultRetryConfig(),
		Log:      zap.NewNop(),
		Root:     NewRootFolderCache(),
		HTTP: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(path, rawQuery string) string {
	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("sfapikey", c.APIKey)
	return h
}

func (c *Client) do(ctx context.Context, op, method, rawURL string, body any) (int, []byte, error) {
	build, err := httpx.JSONRequest(method, rawURL, body, c.header())
	if err != nil {
		return 0, nil, wrapErr(op, err)
	}
	withAuth := func(ctx context.Context) (*http.Request, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.Username, c.Password)
		return req, nil
	}

	log := logging.OrNop(c.Log)
	start := time.Now()
	resp, b, err := httpx.DoWithRetry(ctx, c.HTTP, withAuth, c.Retry)
	elapsed := time.Since(start)
	if err != nil {
		log.Info("mediasite call failed",
			zap.String("op", op), zap.String("method", method), zap.Duration("elapsed", elapsed), zap.Error(err))
		return 0, nil, wrapErr(op, err)
	}
	log.Debug("mediasite call",
		zap.String("op", op), zap.String("method", method), zap.String("url", rawURL), zap.Duration("elapsed", elapsed))
	return resp.StatusCode, b, nil
}

func getOne[T validatable](ctx context.Context, c *Client, op, method, rawURL string, body any) (T, error) {
	var zero T
	_, b, err := c.do(ctx, op, method, rawURL, body)
	if err != nil {
		return zero, err
	}
	v, err := decodeOne[T](b)
	if err != nil {
		return zero, wrapErr(op, &httpx.DecodeError{Err: err, Body: b})
	}
	return v, nil
}

// getMany runs a filtered list query and returns the envelope's values and odata.count.
func getMany[T validatable](ctx context.Context, c *Client, op, path, rawQuery string) ([]T, string, error) {
	_, b, err := c.do(ctx, op, http.MethodGet, c.endpoint(path, rawQuery), nil)
	if err != nil {
		return nil, "", err
	}
	vs, count, skipped, err := decodeMany[T](b)
	if err != nil {
		return nil, "", wrapErr(op, &httpx.DecodeError{Err: err, Body: b})
	}
	if skipped > 0 {
		logging.OrNop(c.Log).Debug("mediasite skipped invalid candidates", zap.String("op", op), zap.Int("skipped", skipped))
	}
	return vs, count, nil
}

func keyPath(collection, id string) string {
	return collection + "('" + url.PathEscape(id) + "')"
}

// Home returns the site's home resource.
func (c *Client) Home(ctx context.Context) (*Home, error) {
	h, err := getOne[Home](ctx, c, "get home", http.MethodGet, c.endpoint("Home", ""), nil)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// RootFolderID returns the tenant root folder, fetched once per cache.
func (c *Client) RootFolderID(ctx context.Context) (string, error) {
	if c.Root == nil {
		c.Root = NewRootFolderCache()
	}
	return c.Root.Get(ctx, func(ctx context.Context) (string, error) {
		h, err := c.Home(ctx)
		if err != nil {
			return "", err
		}
		return h.RootFolderID, nil
	})
}
