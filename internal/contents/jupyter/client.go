// Package jupyter is a contents.Backend over the notebook server's REST
// Contents API (/api/contents).
package jupyter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/http"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/ratelimit"
)

// Chunked saves need notebook server 5.1 or newer.
const (
	minChunkMajor = 5
	minChunkMinor = 1
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Interface("kv", keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Interface("kv", keysAndValues).Msg(msg)
}

// Options configures a Client.
type Options struct {
	// HTTPClient is the base transport. nil uses a default client.
	HTTPClient *nethttp.Client
	// Limiter throttles every request. nil disables throttling.
	Limiter *ratelimit.RateLimiter
	Logger  *logging.Logger
	// RetryMax bounds retries of reads. Writes are never retried.
	RetryMax int
	// RetryWaitMin is the minimum backoff between read retries.
	RetryWaitMin time.Duration
}

// Client talks to one notebook server.
type Client struct {
	readClient  *nethttp.Client // retrying, for GET
	writeClient *nethttp.Client // single attempt, for PUT/PATCH/POST/DELETE
	baseURL     string
	token       string
	limiter     *ratelimit.RateLimiter
	logger      *logging.Logger

	versionMu sync.Mutex
	version   string
}

var _ contents.Backend = (*Client)(nil)
var _ contents.Downloader = (*Client)(nil)

// NewClient creates a client from the [server], [proxy] and [tree] config.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	return New(cfg.Server.URL, cfg.Server.Token, Options{
		HTTPClient: httpClient,
		Limiter:    ratelimit.GlobalStore().GetLimiter(cfg.Server.URL, cfg.Server.Token, cfg.Tree.RateLimit),
		Logger:     logger,
		RetryMax:   4,
	}), nil
}

// New creates a client for the server at baseURL.
func New(baseURL, token string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &nethttp.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 500 * time.Millisecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = opts.HTTPClient
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{logger: opts.Logger}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		readClient:  retryClient.StandardClient(),
		writeClient: opts.HTTPClient,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
	}
}

// escapePath escapes each segment of a contents path.
func escapePath(path string) string {
	segs := pathutil.Parse(path).Segments()
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (c *Client) contentsURL(path string) string {
	return c.baseURL + "/api/contents/" + escapePath(path)
}

// do performs one authenticated request. Reads go through the retrying
// client; everything else is sent once.
func (c *Client) do(ctx context.Context, op, method, rawURL, path string, body interface{}) (*nethttp.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter cancelled: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.writeClient
	if method == nethttp.MethodGet {
		client = c.readClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordContentsRequest("jupyter", op, 0, time.Since(start))
		c.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("contents request failed")
		return nil, fmt.Errorf("%s %s: request failed: %w", op, path, err)
	}
	metrics.RecordContentsRequest("jupyter", op, resp.StatusCode, time.Since(start))

	if resp.StatusCode == nethttp.StatusTooManyRequests && c.limiter != nil {
		c.limiter.Drain(retryAfter(resp))
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, statusError(op, path, resp)
	}
	return resp, nil
}

// retryAfter reads the Retry-After header in seconds, defaulting to 5s.
func retryAfter(resp *nethttp.Response) time.Duration {
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return 5 * time.Second
}

// statusError builds a contents.StatusError, using the server's JSON
// "message" field when present.
func statusError(op, path string, resp *nethttp.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Reason
		}
	}
	return &contents.StatusError{Op: op, Path: path, Code: resp.StatusCode, Message: msg}
}

func decodeEntry(resp *nethttp.Response) (*models.Entry, error) {
	defer resp.Body.Close()
	var entry models.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &entry, nil
}

// Get implements contents.Store.
func (c *Client) Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Entry, error) {
	q := url.Values{}
	if opts.Content {
		q.Set("content", "1")
	} else {
		q.Set("content", "0")
	}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}

	resp, err := c.do(ctx, "get", nethttp.MethodGet, c.contentsURL(path)+"?"+q.Encode(), path, nil)
	if err != nil {
		return nil, err
	}
	return decodeEntry(resp)
}

// Save implements contents.Store.
func (c *Client) Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error) {
	m := *model
	if m.Path == "" {
		m.Path = pathutil.Normalize(path)
	}
	if m.Name == "" {
		m.Name = pathutil.Base(path)
	}

	resp, err := c.do(ctx, "save", nethttp.MethodPut, c.contentsURL(path), path, &m)
	if err != nil {
		return nil, err
	}
	return decodeEntry(resp)
}

// Rename implements contents.Backend.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	body := map[string]string{"path": pathutil.Normalize(newPath)}
	resp, err := c.do(ctx, "rename", nethttp.MethodPatch, c.contentsURL(oldPath), oldPath, body)
	if err != nil {
		return nil, err
	}
	return decodeEntry(resp)
}

// Delete implements contents.Backend.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, "delete", nethttp.MethodDelete, c.contentsURL(path), path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// NewUntitled implements contents.Backend.
func (c *Client) NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error) {
	body := map[string]string{"type": string(typ)}
	resp, err := c.do(ctx, "new", nethttp.MethodPost, c.contentsURL(dir), dir, body)
	if err != nil {
		return nil, err
	}
	return decodeEntry(resp)
}

// DownloadURL implements contents.Store.
func (c *Client) DownloadURL(_ context.Context, path string) (string, error) {
	return c.baseURL + "/files/" + escapePath(path) + "?download=1", nil
}

// Download implements contents.Downloader by streaming /files/<path>.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	u, _ := c.DownloadURL(ctx, path)
	resp, err := c.do(ctx, "download", nethttp.MethodGet, u, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return n, nil
}

// Version returns the server version reported by GET /api. It is fetched
// once and cached.
func (c *Client) Version(ctx context.Context) (string, error) {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()

	if c.version != "" {
		return c.version, nil
	}

	resp, err := c.do(ctx, "version", nethttp.MethodGet, c.baseURL+"/api", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode server version: %w", err)
	}
	c.version = payload.Version
	return c.version, nil
}

// SupportsChunking implements contents.Backend: servers 5.1 and newer accept
// chunked saves.
func (c *Client) SupportsChunking(ctx context.Context) (bool, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return false, err
	}
	return versionAtLeast(v, minChunkMajor, minChunkMinor), nil
}

// versionAtLeast compares the leading major.minor of v ("6.5.4", "5.1.0rc1").
func versionAtLeast(v string, major, minor int) bool {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	maj, ok := leadingInt(parts[0])
	if !ok {
		return false
	}
	if maj != major || len(parts) < 2 {
		return maj > major || (maj == major && minor == 0)
	}
	mnr, ok := leadingInt(parts[1])
	return ok && mnr >= minor
}

func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}
