package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// domainBoostPerTerm is added to the Jaccard score for each shared domain term.
	domainBoostPerTerm = 0.15
	// maxDomainBoost caps the total domain boost.
	maxDomainBoost = 0.3
	// minTokenLength drops short tokens like "a", "on", "of".
	minTokenLength = 3
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "this": {}, "that": {}, "for": {}, "are": {},
	"was": {}, "were": {}, "from": {}, "into": {}, "onto": {}, "there": {}, "their": {},
	"its": {}, "has": {}, "have": {}, "been": {}, "some": {}, "which": {}, "while": {},
	"image": {}, "photo": {}, "photograph": {}, "picture": {}, "shows": {}, "showing": {},
	"visible": {}, "appears": {}, "can": {}, "seen": {}, "also": {}, "near": {}, "over": {},
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// normalizeToken lowercases and strips diacritics.
func normalizeToken(s string) string {
	return strings.ToLower(RemoveDiacritics(strings.TrimSpace(s)))
}

// TokenSet splits free text into a set of normalized content words.
func TokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(normalizeToken(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLength {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B|; two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Vocabulary is a set of domain-specific terms that boost description similarity.
type Vocabulary map[string]struct{}

// NewVocabulary builds a vocabulary from raw terms, normalized like tokens.
func NewVocabulary(terms []string) Vocabulary {
	v := make(Vocabulary, len(terms))
	for _, t := range terms {
		if n := normalizeToken(t); n != "" {
			v[n] = struct{}{}
		}
	}
	return v
}

// DescriptionSimilarity compares two natural-language descriptions lexically.
// The Jaccard score over content words is boosted when both descriptions
// share domain vocabulary, and capped at 1.
func DescriptionSimilarity(a, b string, vocab Vocabulary) float64 {
	ta, tb := TokenSet(a), TokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	score := Jaccard(ta, tb)

	shared := 0
	for term := range vocab {
		_, inA := ta[term]
		_, inB := tb[term]
		if inA && inB {
			shared++
		}
	}
	boost := min(float64(shared)*domainBoostPerTerm, maxDomainBoost)

	return Clamp01(score + boost)
}

// TagSimilarity is the Jaccard overlap of two tag lists, case-insensitive.
func TagSimilarity(a, b []string) float64 {
	return Jaccard(tagSet(a), tagSet(b))
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if n := normalizeToken(t); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
