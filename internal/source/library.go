package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database/mariadb"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/photoprism"
)

// ErrNotConfigured is returned when PhotoPrism access is requested without PHOTOPRISM_URL.
var ErrNotConfigured = errors.New("PhotoPrism is not configured (set PHOTOPRISM_URL)")

// Selection picks photos from a PhotoPrism library: an album, or a search query.
type Selection struct {
	AlbumUID string `json:"album_uid,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Library connects to PhotoPrism on first use and keeps the session open,
// since the image URLs it hands out embed the session's tokens.
// Album reads go through MariaDB when PHOTOPRISM_DATABASE_URL is set.
type Library struct {
	cfg    config.PhotoPrismConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *photoprism.PhotoPrism
	db     *mariadb.Pool
}

// NewLibrary creates a library for cfg. No connection is made until Load.
func NewLibrary(cfg config.PhotoPrismConfig, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{cfg: cfg, logger: logger}
}

// Source returns the Source for sel, connecting if needed.
func (l *Library) Source(ctx context.Context, sel Selection) (Source, error) {
	if sel.AlbumUID == "" && sel.Query == "" {
		return nil, errors.New("album UID or query is required")
	}

	client, db, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case sel.AlbumUID != "" && db != nil:
		return NewMariaDB(db, client, sel.AlbumUID), nil
	case sel.AlbumUID != "":
		return NewPhotoPrismAlbum(client, sel.AlbumUID), nil
	default:
		return NewPhotoPrismQuery(client, sel.Query), nil
	}
}

// Load returns the photos selected by sel.
func (l *Library) Load(ctx context.Context, sel Selection) ([]photo.Photo, error) {
	src, err := l.Source(ctx, sel)
	if err != nil {
		return nil, err
	}
	return src.Photos(ctx)
}

func (l *Library) connect(ctx context.Context) (*photoprism.PhotoPrism, *mariadb.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, l.db, nil
	}
	if l.cfg.URL == "" {
		return nil, nil, ErrNotConfigured
	}

	client, err := photoprism.NewPhotoPrism(ctx, l.cfg.URL, l.cfg.Username, l.cfg.GetPassword())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PhotoPrism: %w", err)
	}

	var db *mariadb.Pool
	if l.cfg.DatabaseURL != "" {
		db, err = mariadb.NewPool(ctx, l.cfg.DatabaseURL)
		if err != nil {
			// The API can serve every selection, just slower.
			l.logger.Warn("PhotoPrism database unavailable, using API", "error", err)
		}
	}

	l.client = client
	l.db = db
	return client, db, nil
}

// Close logs out of PhotoPrism and closes the database pool.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.client != nil {
		if err := l.client.Logout(ctx); err != nil {
			errs = append(errs, err)
		}
		l.client = nil
	}
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			errs = append(errs, err)
		}
		l.db = nil
	}
	return errors.Join(errs...)
}
