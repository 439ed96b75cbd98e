// Package source loads the photos handed to the similarity pipeline.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/photoprism"
)

// Source supplies photos for one analysis run.
type Source interface {
	Photos(ctx context.Context) ([]photo.Photo, error)
}

// ImageURLs builds image locations for PhotoPrism file hashes.
// *photoprism.PhotoPrism implements it.
type ImageURLs interface {
	ThumbnailURL(fileHash, size string) string
	DownloadURL(fileHash string) string
}

// record is a PhotoPrism photo in the shape shared by the API and database readers.
type record struct {
	uid      string
	takenAt  time.Time
	lat, lng float64
	altitude int
	caption  string
	title    string
	hash     string
}

// toPhoto converts a PhotoPrism record. projectID is the album UID when the
// photos were loaded from an album.
func toPhoto(r record, urls ImageURLs, projectID string) photo.Photo {
	p := photo.Photo{
		ID:         r.uid,
		CapturedAt: r.takenAt,
		ProjectID:  projectID,
	}

	// PhotoPrism stores 0,0 for photos without GPS.
	if r.lat != 0 || r.lng != 0 {
		c := photo.Coordinate{Latitude: r.lat, Longitude: r.lng}
		if r.altitude != 0 {
			alt := float64(r.altitude)
			c.Altitude = &alt
		}
		p.Coordinates = []photo.Coordinate{c}
	}

	if r.hash != "" && urls != nil {
		p.Images = []photo.ImageURI{
			{Purpose: photo.PurposeThumbnail, URL: urls.ThumbnailURL(r.hash, photoprism.ThumbSmall)},
			{Purpose: photo.PurposeWeb, URL: urls.ThumbnailURL(r.hash, photoprism.ThumbWeb)},
			{Purpose: photo.PurposeOriginal, URL: urls.DownloadURL(r.hash)},
		}
	}

	p.Description = strings.TrimSpace(r.caption)
	if p.Description == "" {
		p.Description = strings.TrimSpace(r.title)
	}
	return p
}

// parseTakenAt parses PhotoPrism's TakenAt, returning the zero time when unset or malformed.
func parseTakenAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
