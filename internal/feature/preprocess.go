package feature

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// DefaultInputSize is the square model input edge.
const DefaultInputSize = 224

// ImageNet channel statistics.
var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess decodes image bytes and builds a model input tensor.
func Preprocess(data []byte, size int) (*Tensor, error) {
	img, err := fingerprint.Decode(data)
	if err != nil {
		return nil, err
	}
	return PreprocessImage(img, size), nil
}

// PreprocessImage center-crops img to a square, resizes it to size x size and
// normalizes it into a CHW tensor.
func PreprocessImage(img image.Image, size int) *Tensor {
	if size <= 0 {
		size = DefaultInputSize
	}

	crop := centerSquare(img.Bounds())
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, crop, draw.Src, nil)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := range size {
		for x := range size {
			c := resized.RGBAAt(x, y)
			i := y*size + x
			data[i] = (float32(c.R)/255 - imageNetMean[0]) / imageNetStd[0]
			data[plane+i] = (float32(c.G)/255 - imageNetMean[1]) / imageNetStd[1]
			data[2*plane+i] = (float32(c.B)/255 - imageNetMean[2]) / imageNetStd[2]
		}
	}

	return &Tensor{
		Data:    data,
		Channel: 3,
		Height:  size,
		Width:   size,
		Image:   resized,
	}
}

// centerSquare returns the largest centered square inside r.
func centerSquare(r image.Rectangle) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	side := min(w, h)
	x0 := r.Min.X + (w-side)/2
	y0 := r.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
