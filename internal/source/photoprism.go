package source

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/photoprism"
)

// PhotoPrismClient is the part of the PhotoPrism API client used to list photos.
type PhotoPrismClient interface {
	ImageURLs
	GetAlbum(ctx context.Context, albumUID string) (*photoprism.Album, error)
	GetAlbumPhotos(ctx context.Context, albumUID string, count int, offset int) ([]photoprism.Photo, error)
	GetPhotosWithQuery(ctx context.Context, count int, offset int, query string, quality ...int) ([]photoprism.Photo, error)
}

// PhotoPrismAPI lists the photos of an album, or of a search query, through the REST API.
type PhotoPrismAPI struct {
	client   PhotoPrismClient
	albumUID string
	query    string
	pageSize int
	limit    int
}

// NewPhotoPrismAlbum creates a source for all photos in an album.
// The album UID becomes each photo's project.
func NewPhotoPrismAlbum(client PhotoPrismClient, albumUID string) *PhotoPrismAPI {
	return &PhotoPrismAPI{
		client:   client,
		albumUID: albumUID,
		pageSize: constants.DefaultPageSize,
		limit:    constants.MaxPhotosPerFetch,
	}
}

// NewPhotoPrismQuery creates a source for a PhotoPrism search query (e.g. "year:2024 label:building").
func NewPhotoPrismQuery(client PhotoPrismClient, query string) *PhotoPrismAPI {
	return &PhotoPrismAPI{
		client:   client,
		query:    query,
		pageSize: constants.DefaultPageSize,
		limit:    constants.MaxPhotosPerFetch,
	}
}

// Photos implements Source.
func (s *PhotoPrismAPI) Photos(ctx context.Context) ([]photo.Photo, error) {
	if s.albumUID != "" {
		if _, err := s.client.GetAlbum(ctx, s.albumUID); err != nil {
			if photoprism.IsNotFoundError(err) {
				return nil, fmt.Errorf("album %s not found", s.albumUID)
			}
			return nil, fmt.Errorf("failed to get album: %w", err)
		}
	}

	var result []photo.Photo
	offset := 0

	for len(result) < s.limit {
		count := min(s.pageSize, s.limit-len(result))

		var page []photoprism.Photo
		var err error
		if s.albumUID != "" {
			page, err = s.client.GetAlbumPhotos(ctx, s.albumUID, count, offset)
		} else {
			page, err = s.client.GetPhotosWithQuery(ctx, count, offset, s.query)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get photos: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, p := range page {
			result = append(result, toPhoto(fromAPI(p), s.client, s.albumUID))
		}
		offset += len(page)

		if len(page) < count {
			break
		}
	}

	return result, nil
}

func fromAPI(p photoprism.Photo) record {
	return record{
		uid:      p.UID,
		takenAt:  parseTakenAt(p.TakenAt),
		lat:      p.Lat,
		lng:      p.Lng,
		altitude: p.Altitude,
		caption:  p.Caption,
		title:    p.Title,
		hash:     p.Hash,
	}
}
