package photoprism

import (
	"context"
	"fmt"
	"net/url"
)

// Thumbnail sizes used for analysis. See PhotoPrism's thumbnail settings for
// the full list (tile_224, fit_720, fit_1280, fit_1920, ...).
const (
	ThumbSmall = "fit_720"
	ThumbWeb   = "fit_1280"
)

// GetPhotosWithQuery retrieves photos from PhotoPrism with an optional search query
// Query examples: "person:jan-novak", "label:cat", "year:2024"
// Optional quality parameter sets minimum quality score (1-7). PhotoPrism UI defaults to 3.
func (pp *PhotoPrism) GetPhotosWithQuery(ctx context.Context, count int, offset int, query string, quality ...int) ([]Photo, error) {
	endpoint := fmt.Sprintf("photos?count=%d&offset=%d&order=oldest", count, offset)
	if query != "" {
		endpoint += "&q=" + url.QueryEscape(query)
	}
	if len(quality) > 0 && quality[0] > 0 {
		endpoint += fmt.Sprintf("&quality=%d", quality[0])
	}

	result, err := doGetJSON[[]Photo](ctx, pp, endpoint)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// ThumbnailURL returns the URL of a thumbnail for a file hash.
// Thumbnails are authorized by the preview token, or the download token
// when the server does not issue a separate one.
func (pp *PhotoPrism) ThumbnailURL(fileHash, size string) string {
	if fileHash == "" {
		return ""
	}
	token := pp.previewToken
	if token == "" {
		token = pp.downloadToken
	}
	return fmt.Sprintf("%s/t/%s/%s/%s", pp.Url, fileHash, token, size)
}

// DownloadURL returns the URL of the original file for a file hash.
func (pp *PhotoPrism) DownloadURL(fileHash string) string {
	if fileHash == "" {
		return ""
	}
	return fmt.Sprintf("%s/dl/%s?t=%s", pp.Url, fileHash, url.QueryEscape(pp.downloadToken))
}
