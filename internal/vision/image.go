package vision

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/herdwatch/herdwatch-go/internal/errors"
)

// ErrUnsupportedImageKind is returned when the image bytes are not a
// decodable JPEG or PNG.
var ErrUnsupportedImageKind = errors.NewStd("unsupported image kind")

// ImageData is a decoded frame image. Bytes holds the original encoded
// content so backends can hash or re-decode it; Pixels is the decoded
// raster used for pixel statistics.
type ImageData struct {
	Path   string
	Bytes  []byte
	Format string
	Width  int
	Height int

	pixels image.Image
}

// LoadImage reads and decodes an image file. Undecodable content fails
// with ErrUnsupportedImageKind.
func LoadImage(path string) (*ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryFileIO).
			Context("image_path", path).
			Build()
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	img.Path = path
	return img, nil
}

// DecodeImage decodes encoded JPEG or PNG bytes.
func DecodeImage(data []byte) (*ImageData, error) {
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(ErrUnsupportedImageKind).
			Component("vision").
			Category(errors.CategoryImageDecode).
			Context("detail", err.Error()).
			Build()
	}
	bounds := decoded.Bounds()
	return &ImageData{
		Bytes:  data,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		pixels: decoded,
	}, nil
}

// LuminanceStats returns the mean and standard deviation of the image
// luminance, both normalized to [0,1]. Sampling strides over large images
// to keep the scan cheap.
func (img *ImageData) LuminanceStats() (mean, stddev float64) {
	bounds := img.pixels.Bounds()
	stride := 1
	if bounds.Dx() > 256 || bounds.Dy() > 256 {
		stride = max(bounds.Dx(), bounds.Dy()) / 256
	}

	var sum, sumSq float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, _ := img.pixels.At(x, y).RGBA()
			// ITU-R BT.601 luma on 16-bit channel values.
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
			sum += luma
			sumSq += luma * luma
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// Crop returns the pixel rectangle for a normalized region, clamped to the
// image bounds. A nil region selects the whole image.
func (img *ImageData) Crop(region *Region) image.Rectangle {
	bounds := img.pixels.Bounds()
	if region == nil {
		return bounds
	}
	clamp01 := func(v float64) float64 { return math.Min(1, math.Max(0, v)) }
	x1 := bounds.Min.X + int(clamp01(region.X1)*float64(bounds.Dx()))
	y1 := bounds.Min.Y + int(clamp01(region.Y1)*float64(bounds.Dy()))
	x2 := bounds.Min.X + int(clamp01(region.X2)*float64(bounds.Dx()))
	y2 := bounds.Min.Y + int(clamp01(region.Y2)*float64(bounds.Dy()))
	rect := image.Rect(x1, y1, x2, y2)
	return rect.Intersect(bounds)
}
