package photoprism

import (
	"context"
	"fmt"
)

// GetAlbum retrieves a single album by UID
func (pp *PhotoPrism) GetAlbum(ctx context.Context, albumUID string) (*Album, error) {
	return doGetJSON[Album](ctx, pp, fmt.Sprintf("albums/%s", albumUID))
}

// GetAlbumPhotos retrieves photos from a specific album
func (pp *PhotoPrism) GetAlbumPhotos(ctx context.Context, albumUID string, count int, offset int) ([]Photo, error) {
	endpoint := fmt.Sprintf("photos?count=%d&offset=%d&s=%s", count, offset, albumUID)
	result, err := doGetJSON[[]Photo](ctx, pp, endpoint)
	if err != nil {
		return nil, err
	}
	return *result, nil
}
