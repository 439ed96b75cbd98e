package similarity

import (
	"math"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/photo"
)

// earthRadiusMeters is the IUGG mean Earth radius.
const earthRadiusMeters = 6371008.8

// TemporalScore maps the absolute capture-time difference to a proximity score.
// Photos without a capture time score 0.
func TemporalScore(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}

	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	minutes := diff.Minutes()

	switch {
	case diff == 0:
		return 1.0
	case minutes < 1:
		return 0.98
	case minutes < 5:
		return 0.95
	case minutes < 15:
		return 0.85
	case minutes < 60:
		return 0.6
	case minutes < 4*60:
		return 0.3
	case minutes < 24*60:
		return 0.1
	default:
		return 0.05
	}
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(a, b photo.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// SpatialScore maps the distance between the first coordinates of two photos
// to a proximity score. Missing coordinates on either side score 0.
func SpatialScore(a, b *photo.Photo) float64 {
	ca, okA := a.FirstCoordinate()
	cb, okB := b.FirstCoordinate()
	if !okA || !okB {
		return 0
	}
	if ca.Latitude == cb.Latitude && ca.Longitude == cb.Longitude {
		return 1.0
	}

	meters := HaversineMeters(ca, cb)
	switch {
	case meters < 10:
		return 0.98
	case meters < 50:
		return 0.92
	case meters < 100:
		return 0.6
	case meters < 500:
		return 0.4
	case meters < 1000:
		return 0.2
	default:
		return 0.0
	}
}

// ContentScore is the same-project/same-creator heuristic.
func ContentScore(a, b *photo.Photo) float64 {
	var score float64
	if a.ProjectID != "" && a.ProjectID == b.ProjectID {
		score += 0.5
	}
	if a.CreatorID != "" && a.CreatorID == b.CreatorID {
		score += 0.5
	}
	return score
}
