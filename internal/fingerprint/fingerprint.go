package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultHashSize is the dHash grid width N; the hash has N*N bits.
const DefaultHashSize = 8

// HashResult contains the 64-bit perceptual hashes reported by the fingerprint command.
type HashResult struct {
	PHash     string `json:"phash"` // 64-bit perceptual hash as hex string
	DHash     string `json:"dhash"` // 64-bit difference hash as hex string
	PHashBits uint64 `json:"-"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Decode decodes image bytes in any registered format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ComputeHashes computes both pHash and an 8x8 dHash for an image.
func ComputeHashes(imageData []byte) (*HashResult, error) {
	img, err := Decode(imageData)
	if err != nil {
		return nil, err
	}

	pHash := computePHash(img)

	return &HashResult{
		PHash:     fmt.Sprintf("%016x", pHash),
		DHash:     DifferenceHash(img, DefaultHashSize),
		PHashBits: pHash,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
	}, nil
}

// ComputeDHash decodes image bytes and returns their difference hash as hex.
func ComputeDHash(data []byte, size int) (string, error) {
	img, err := Decode(data)
	if err != nil {
		return "", err
	}
	return DifferenceHash(img, size), nil
}

// DifferenceHash computes an N*N bit difference hash as a hex string.
// The image is reduced to (N+1)xN grayscale; each row yields N bits where
// a bit is 1 when a pixel is darker than its right neighbour. Bits are
// emitted row-major and packed four per hex digit, zero-padded at the end.
func DifferenceHash(img image.Image, size int) string {
	if size <= 0 {
		size = DefaultHashSize
	}

	gray := toGrayscale(resizeImage(img, size+1, size))

	bitCount := size * size
	digits := (bitCount + 3) / 4
	nibbles := make([]byte, digits)

	i := 0
	for y := range size {
		for x := range size {
			if gray[x][y] < gray[x+1][y] {
				nibbles[i/4] |= 1 << (3 - i%4)
			}
			i++
		}
	}

	var sb strings.Builder
	sb.Grow(digits)
	for _, n := range nibbles {
		sb.WriteByte("0123456789abcdef"[n])
	}
	return sb.String()
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// HammingDistanceHex counts differing bits between two equal-length hex hashes.
// Returns -1 when the lengths differ or a string is not valid hex.
func HammingDistanceHex(a, b string) int {
	if len(a) != len(b) {
		return -1
	}
	distance := 0
	for i := 0; i < len(a); i++ {
		va, okA := hexValue(a[i])
		vb, okB := hexValue(b[i])
		if !okA || !okB {
			return -1
		}
		distance += bits.OnesCount8(va ^ vb)
	}
	return distance
}

// HexSimilarity returns 1 - hamming/(len*4) for two hex hashes.
// Empty, unequal-length or malformed hashes score 0.
func HexSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	d := HammingDistanceHex(a, b)
	if d < 0 {
		return 0
	}
	return 1 - float64(d)/float64(len(a)*4)
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// computePHash computes a 64-bit perceptual hash using DCT.
func computePHash(img image.Image) uint64 {
	gray := toGrayscale(resizeImage(img, 32, 32))
	dct := computeDCT(gray)

	// Top-left 8x8 low frequencies without the DC term, topped up from the next row.
	lowFreq := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	lowFreq = append(lowFreq, dct[8][0])

	median := computeMedian(lowFreq)

	var hash uint64
	for i, v := range lowFreq {
		if v > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a column-major grid of luma values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			c := img.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}
	return gray
}

// computeDCT computes the 2D DCT-II of a square grayscale grid.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// Separable transform: rows first, then columns.
	tmp := make([][]float64, size)
	for u := range size {
		tmp[u] = make([]float64, size)
		for y := range size {
			var sum float64
			for x := range size {
				sum += gray[x][y] * cosTable[u][x]
			}
			tmp[u][y] = sum
		}
	}

	dct := make([][]float64, size)
	for u := range size {
		dct[u] = make([]float64, size)
		for v := range size {
			var sum float64
			for y := range size {
				sum += tmp[u][y] * cosTable[v][y]
			}
			dct[u][v] = sum
		}
	}
	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
