package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PhotoRow is the subset of a PhotoPrism photo needed for similarity analysis.
type PhotoRow struct {
	UID      string
	TakenAt  time.Time
	Lat      float64
	Lng      float64
	Altitude int
	Title    string
	Caption  string
	FileHash string // primary file hash, empty when the photo has no usable file
}

// PhotoFilter restricts which photos are read.
type PhotoFilter struct {
	AlbumUID   string // only photos in this album, visible entries only
	MinQuality int    // PhotoPrism quality score (photo_quality)
	Limit      int    // 0 for no limit
}

// buildPhotosQuery returns the SQL and arguments for filter.
func buildPhotosQuery(filter PhotoFilter) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString(`
		SELECT p.photo_uid, p.taken_at, p.photo_lat, p.photo_lng, p.photo_altitude,
		       p.photo_title, p.photo_caption, COALESCE(f.file_hash, '')
		FROM photos p
		LEFT JOIN files f ON f.photo_id = p.id AND f.file_primary = 1 AND f.file_missing = 0 AND f.deleted_at IS NULL`)

	if filter.AlbumUID != "" {
		b.WriteString(`
		JOIN photos_albums pa ON pa.photo_uid = p.photo_uid AND pa.hidden = 0 AND pa.album_uid = ?`)
		args = append(args, filter.AlbumUID)
	}

	b.WriteString(`
		WHERE p.deleted_at IS NULL`)
	if filter.MinQuality > 0 {
		b.WriteString(` AND p.photo_quality >= ?`)
		args = append(args, filter.MinQuality)
	}

	b.WriteString(`
		ORDER BY p.taken_at, p.photo_uid`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	return b.String(), args
}

// GetPhotos returns photos matching filter ordered by capture time.
func (p *Pool) GetPhotos(ctx context.Context, filter PhotoFilter) ([]PhotoRow, error) {
	query, args := buildPhotosQuery(filter)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var result []PhotoRow
	for rows.Next() {
		var row PhotoRow
		var takenAt sql.NullTime
		var title, caption sql.NullString
		if err := rows.Scan(&row.UID, &takenAt, &row.Lat, &row.Lng, &row.Altitude, &title, &caption, &row.FileHash); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		row.TakenAt = takenAt.Time
		row.Title = title.String
		row.Caption = caption.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}

	return result, nil
}
