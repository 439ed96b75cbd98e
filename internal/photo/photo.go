// Package photo defines the photo record consumed by the similarity pipeline.
package photo

import (
	"fmt"
	"time"
)

// Purpose tags what an image URI is meant for.
type Purpose string

// Purpose values supported by photo sources.
const (
	PurposeThumbnail Purpose = "thumbnail"
	PurposeWeb       Purpose = "web"
	PurposeOriginal  Purpose = "original"
)

// DefaultPurposes is the URI preference order used when no explicit order is given.
var DefaultPurposes = []Purpose{PurposeWeb, PurposeThumbnail, PurposeOriginal}

// Coordinate is a GPS position. Altitude is optional.
type Coordinate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// ImageURI is an addressable image of a photo.
type ImageURI struct {
	Purpose Purpose `json:"purpose"`
	URL     string  `json:"url"`
}

// Photo is a single photograph with the metadata the pipeline reads.
// The pipeline never modifies a Photo.
type Photo struct {
	ID          string       `json:"id"`
	CapturedAt  time.Time    `json:"captured_at"`
	Coordinates []Coordinate `json:"coordinates,omitempty"`
	Images      []ImageURI   `json:"images,omitempty"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	ProjectID   string       `json:"project_id,omitempty"`
	CreatorID   string       `json:"creator_id,omitempty"`
}

// URL returns the first non-empty image URL following the given purpose order.
// With no order, DefaultPurposes is used. Returns "" when nothing matches.
func (p *Photo) URL(order ...Purpose) string {
	if len(order) == 0 {
		order = DefaultPurposes
	}
	for _, purpose := range order {
		for _, img := range p.Images {
			if img.Purpose == purpose && img.URL != "" {
				return img.URL
			}
		}
	}
	return ""
}

// FirstCoordinate returns the first GPS coordinate, if any.
func (p *Photo) FirstCoordinate() (Coordinate, bool) {
	if len(p.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return p.Coordinates[0], true
}

// ParsePurposes converts purpose names into a preference order, skipping unknown names.
func ParsePurposes(names []string) []Purpose {
	var out []Purpose
	for _, n := range names {
		switch Purpose(n) {
		case PurposeThumbnail, PurposeWeb, PurposeOriginal:
			out = append(out, Purpose(n))
		}
	}
	return out
}

// Refs returns pointers to the elements of photos, in order.
func Refs(photos []Photo) []*Photo {
	out := make([]*Photo, len(photos))
	for i := range photos {
		out[i] = &photos[i]
	}
	return out
}

// Validate checks that no photo is nil and every photo has a unique non-empty ID.
func Validate(photos []*Photo) error {
	seen := make(map[string]struct{}, len(photos))
	for i, p := range photos {
		if p == nil {
			return fmt.Errorf("photo at index %d is nil", i)
		}
		if p.ID == "" {
			return fmt.Errorf("photo at index %d has no id", i)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate photo id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
