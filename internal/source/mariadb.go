package source

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/database/mariadb"
	"github.com/kozaktomas/photo-dedup/internal/photo"
)

// PhotoReader reads photo rows from the PhotoPrism database.
type PhotoReader interface {
	GetPhotos(ctx context.Context, filter mariadb.PhotoFilter) ([]mariadb.PhotoRow, error)
}

// MariaDB reads photos straight from PhotoPrism's database, which is much
// faster than paging the API for large albums. Image URLs still point at
// the PhotoPrism server.
type MariaDB struct {
	reader   PhotoReader
	urls     ImageURLs
	albumUID string
}

// NewMariaDB creates a database source. An empty albumUID reads the whole library.
func NewMariaDB(reader PhotoReader, urls ImageURLs, albumUID string) *MariaDB {
	return &MariaDB{reader: reader, urls: urls, albumUID: albumUID}
}

// Photos implements Source.
func (s *MariaDB) Photos(ctx context.Context) ([]photo.Photo, error) {
	rows, err := s.reader.GetPhotos(ctx, mariadb.PhotoFilter{
		AlbumUID: s.albumUID,
		Limit:    constants.MaxPhotosPerFetch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read photos: %w", err)
	}

	photos := make([]photo.Photo, 0, len(rows))
	for _, r := range rows {
		photos = append(photos, toPhoto(record{
			uid:      r.UID,
			takenAt:  r.TakenAt,
			lat:      r.Lat,
			lng:      r.Lng,
			altitude: r.Altitude,
			caption:  r.Caption,
			title:    r.Title,
			hash:     r.FileHash,
		}, s.urls, s.albumUID))
	}
	return photos, nil
}
