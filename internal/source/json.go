package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kozaktomas/photo-dedup/internal/photo"
)

// JSONFile reads photos from a JSON file holding either an array of photos
// or an object with a "photos" array. Relative image paths are resolved
// against the file's directory.
type JSONFile struct {
	Path string
}

// NewJSONFile creates a JSON file source.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

// Photos implements Source.
func (s *JSONFile) Photos(ctx context.Context) ([]photo.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo list: %w", err)
	}

	photos, err := DecodePhotos(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Path, err)
	}

	dir := filepath.Dir(s.Path)
	for i := range photos {
		for j := range photos[i].Images {
			photos[i].Images[j].URL = resolveLocation(dir, photos[i].Images[j].URL)
		}
	}
	return photos, nil
}

// DecodePhotos decodes a photo list in either accepted layout.
func DecodePhotos(data []byte) ([]photo.Photo, error) {
	var photos []photo.Photo
	if err := json.Unmarshal(data, &photos); err == nil {
		return ValidatePhotos(photos)
	}

	var wrapped struct {
		Photos []photo.Photo `json:"photos"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	return ValidatePhotos(wrapped.Photos)
}

// ValidatePhotos checks that every photo has a unique non-empty ID.
func ValidatePhotos(photos []photo.Photo) ([]photo.Photo, error) {
	if err := photo.Validate(photo.Refs(photos)); err != nil {
		return nil, err
	}
	return photos, nil
}

// resolveLocation makes relative file paths absolute against dir and leaves URLs alone.
func resolveLocation(dir, location string) string {
	if location == "" || filepath.IsAbs(location) {
		return location
	}
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return location
	}
	return filepath.Join(dir, location)
}
