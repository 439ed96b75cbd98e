package caption

import (
	"context"
	"log/slog"

	"github.com/kozaktomas/photo-dedup/internal/fetch"
)

// Captioner fetches photo images and asks a Provider to describe them.
// It never fails: errors are logged and reported as a missing description.
type Captioner struct {
	provider Provider
	fetcher  fetch.Fetcher
	logger   *slog.Logger
}

// NewCaptioner creates a captioner. A nil logger falls back to slog.Default.
func NewCaptioner(provider Provider, fetcher fetch.Fetcher, logger *slog.Logger) *Captioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Captioner{provider: provider, fetcher: fetcher, logger: logger}
}

// Provider returns the underlying provider.
func (c *Captioner) Provider() Provider {
	return c.provider
}

// GenerateDescription returns a description of the image at url, or false
// when the image cannot be fetched or described.
func (c *Captioner) GenerateDescription(ctx context.Context, url, photoID string) (string, bool) {
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		fetch.LogFailure(c.logger, photoID, url, err)
		return "", false
	}

	description, err := c.provider.Describe(ctx, data)
	if err != nil {
		c.logger.Warn("caption failed", "photo_id", photoID, "provider", c.provider.Name(), "error", err)
		return "", false
	}
	return description, true
}
