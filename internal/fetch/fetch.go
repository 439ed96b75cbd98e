// Package fetch retrieves raw image bytes from HTTP(S) URLs and local files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

// DefaultMaxBytes caps a single image download.
const DefaultMaxBytes = 64 << 20

// ErrEmptyURL is returned when asked to fetch an empty location.
var ErrEmptyURL = errors.New("empty image url")

// Fetcher returns the raw bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Config configures a Client.
type Config struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 for unlimited
	Burst     int
	MaxBytes  int64
	Header    http.Header
}

// Client fetches images over HTTP(S) or from the file system.
// HTTP requests share a token bucket and go through a resilience executor.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	exec     *resilience.Executor
	maxBytes int64
	header   http.Header
}

// NewClient creates a fetch client. exec may be nil to disable retries.
func NewClient(cfg Config, exec *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	c := &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		exec:     exec,
		maxBytes: cfg.MaxBytes,
		header:   cfg.Header,
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Fetch returns the bytes behind location: http(s) URLs, file:// URLs or plain paths.
func (c *Client) Fetch(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrEmptyURL
	}

	u, err := url.Parse(location)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return c.fetchHTTP(ctx, location)
		case "file":
			return c.readFile(u.Path)
		}
	}
	return c.readFile(location)
}

func (c *Client) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var data []byte
	call := func(ctx context.Context) error {
		var err error
		data, err = c.get(ctx, location)
		return err
	}

	var err error
	if c.exec != nil {
		err = c.exec.Execute(ctx, "fetch_image", call, resilience.ClassifyHTTP)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", redact(location), err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &resilience.StatusError{Operation: "fetch image", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return c.readAll(resp.Body)
}

func (c *Client) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return c.readAll(f)
}

func (c *Client) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", c.maxBytes)
	}
	return data, nil
}

// redact strips query strings, which may carry download tokens.
func redact(location string) string {
	if i := strings.IndexByte(location, '?'); i >= 0 {
		return location[:i]
	}
	return location
}

// LogFailure logs a per-item fetch failure at warn level.
func LogFailure(logger *slog.Logger, photoID, location string, err error) {
	logger.Warn("image fetch failed", "photo_id", photoID, "url", redact(location), "error", err)
}
