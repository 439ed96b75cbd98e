package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/photo"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{0.3, 0.4, 0.5}, []float32{0.3, 0.4, 0.5}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1.0},
		{"length mismatch", []float32{1, 2}, []float32{1}, 0.0},
		{"empty", nil, nil, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("CosineSimilarity = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestCosineSimilarity_SelfIsExactlyOne(t *testing.T) {
	v := []float32{0.12345, -0.9876, 0.5555, 0.001, 3.3}
	if got := CosineSimilarity(v, v); got != 1.0 {
		t.Errorf("cos(v, v) = %v; want exactly 1", got)
	}
}

func TestTemporalScore(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		diff     time.Duration
		expected float64
	}{
		{"same instant", 0, 1.0},
		{"2 seconds", 2 * time.Second, 0.98},
		{"3 minutes", 3 * time.Minute, 0.95},
		{"10 minutes", 10 * time.Minute, 0.85},
		{"30 minutes", 30 * time.Minute, 0.6},
		{"2 hours", 2 * time.Hour, 0.3},
		{"12 hours", 12 * time.Hour, 0.1},
		{"2 days", 48 * time.Hour, 0.05},
		{"negative diff", -3 * time.Minute, 0.95},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TemporalScore(base, base.Add(tc.diff)); got != tc.expected {
				t.Errorf("TemporalScore(%v) = %v; want %v", tc.diff, got, tc.expected)
			}
		})
	}

	if got := TemporalScore(time.Time{}, base); got != 0 {
		t.Errorf("zero timestamp scored %v; want 0", got)
	}
}

func TestHaversineMeters(t *testing.T) {
	// Two points in central Prague roughly 1.5 km apart.
	a := photo.Coordinate{Latitude: 50.0875, Longitude: 14.4213}
	b := photo.Coordinate{Latitude: 50.0903, Longitude: 14.4000}
	d := HaversineMeters(a, b)
	if d < 1400 || d > 1800 {
		t.Errorf("HaversineMeters = %v; want ~1.5 km", d)
	}
	if got := HaversineMeters(a, a); got != 0 {
		t.Errorf("distance to self = %v; want 0", got)
	}
}

func TestSpatialScore(t *testing.T) {
	at := func(lat, lng float64) *photo.Photo {
		return &photo.Photo{Coordinates: []photo.Coordinate{{Latitude: lat, Longitude: lng}}}
	}
	// 0.00001 degree of latitude is about 1.1 m.
	tests := []struct {
		name     string
		a, b     *photo.Photo
		expected float64
	}{
		{"same point", at(50, 14), at(50, 14), 1.0},
		{"~5 m", at(50, 14), at(50.000045, 14), 0.98},
		{"~30 m", at(50, 14), at(50.00027, 14), 0.92},
		{"~80 m", at(50, 14), at(50.00072, 14), 0.6},
		{"~300 m", at(50, 14), at(50.0027, 14), 0.4},
		{"~700 m", at(50, 14), at(50.0063, 14), 0.2},
		{"~5 km", at(50, 14), at(50.045, 14), 0.0},
		{"missing", at(50, 14), &photo.Photo{}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SpatialScore(tc.a, tc.b); got != tc.expected {
				t.Errorf("SpatialScore = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestContentScore(t *testing.T) {
	tests := []struct {
		name     string
		a, b     photo.Photo
		expected float64
	}{
		{"same project and creator", photo.Photo{ProjectID: "p", CreatorID: "c"}, photo.Photo{ProjectID: "p", CreatorID: "c"}, 1.0},
		{"same project", photo.Photo{ProjectID: "p", CreatorID: "c"}, photo.Photo{ProjectID: "p", CreatorID: "d"}, 0.5},
		{"empty ids never match", photo.Photo{}, photo.Photo{}, 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContentScore(&tc.a, &tc.b); got != tc.expected {
				t.Errorf("ContentScore = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestTokenSet(t *testing.T) {
	got := TokenSet("The Kitchen cabinet, with new Tiles & a drywall!")
	for _, want := range []string{"kitchen", "cabinet", "new", "tiles", "drywall"} {
		if _, ok := got[want]; !ok {
			t.Errorf("TokenSet missing %q: %v", want, got)
		}
	}
	for _, dropped := range []string{"the", "with", "a"} {
		if _, ok := got[dropped]; ok {
			t.Errorf("TokenSet kept %q", dropped)
		}
	}

	diacritics := TokenSet("Koupelna s dlažbou")
	if _, ok := diacritics["dlazbou"]; !ok {
		t.Errorf("expected diacritics to be removed: %v", diacritics)
	}
}

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		m := map[string]struct{}{}
		for _, i := range items {
			m[i] = struct{}{}
		}
		return m
	}
	tests := []struct {
		name     string
		a, b     map[string]struct{}
		expected float64
	}{
		{"identical", set("a", "b"), set("a", "b"), 1.0},
		{"half", set("a", "b"), set("a", "c"), 1.0 / 3.0},
		{"disjoint", set("a"), set("b"), 0.0},
		{"both empty", set(), set(), 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Jaccard(tc.a, tc.b); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Jaccard = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestDescriptionSimilarity_DomainBoost(t *testing.T) {
	vocab := NewVocabulary([]string{"drywall", "framing", "insulation"})
	a := "Drywall installed over framing in the living room"
	b := "Framing and drywall ready for paint upstairs"

	plain := DescriptionSimilarity(a, b, nil)
	boosted := DescriptionSimilarity(a, b, vocab)

	if math.Abs(boosted-(plain+0.3)) > 1e-9 {
		t.Errorf("boosted = %v; want plain (%v) + 0.3", boosted, plain)
	}

	if got := DescriptionSimilarity(a, a, vocab); got != 1.0 {
		t.Errorf("self similarity with boost = %v; want capped 1.0", got)
	}
	if got := DescriptionSimilarity("", a, vocab); got != 0 {
		t.Errorf("empty description scored %v; want 0", got)
	}
}

func TestWeightsCombine(t *testing.T) {
	s := Score{Visual: 0.999, Temporal: 0.98, Spatial: 1.0}
	want := 0.8*0.999 + 0.1*0.98 + 0.1*1.0
	if got := VisualWeights.Combine(s); math.Abs(got-want) > 1e-9 {
		t.Errorf("Combine = %v; want %v", got, want)
	}

	over := Weights{Visual: 2}.Combine(Score{Visual: 1})
	if over != 1 {
		t.Errorf("Combine should clamp to 1, got %v", over)
	}
}

func TestAverage(t *testing.T) {
	scores := []Score{
		{PhotoA: "a", PhotoB: "b", Visual: 1.0, Temporal: 1.0, Spatial: 1.0},
		{PhotoA: "a", PhotoB: "c", Visual: 0.9, Temporal: 0.5, Spatial: 0.0},
	}
	avg := Average(scores, VisualWeights)
	if math.Abs(avg.Visual-0.95) > 1e-9 || math.Abs(avg.Temporal-0.75) > 1e-9 || math.Abs(avg.Spatial-0.5) > 1e-9 {
		t.Errorf("unexpected average %+v", avg)
	}
	want := 0.8*0.95 + 0.1*0.75 + 0.1*0.5
	if math.Abs(avg.Overall-want) > 1e-9 {
		t.Errorf("Overall = %v; want %v", avg.Overall, want)
	}
	if Average(nil, VisualWeights) != (Score{}) {
		t.Error("Average(nil) should be zero score")
	}
}
