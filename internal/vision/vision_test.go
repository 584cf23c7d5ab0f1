package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestImage renders a small PNG filled with the given color.
func encodeTestImage(t *testing.T, fill color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	data := encodeTestImage(t, color.NRGBA{R: 120, G: 140, B: 90, A: 255})

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("definitely not an image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedImageKind)
}

func TestFallbackDetectDeterministic(t *testing.T) {
	backend := NewFallbackBackend()
	assert.Equal(t, ModeDeterministicFallback, backend.Mode())

	data := encodeTestImage(t, color.NRGBA{R: 200, G: 180, B: 160, A: 255})
	img, err := DecodeImage(data)
	require.NoError(t, err)

	first, err := backend.Detect(img)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.LessOrEqual(t, len(first), 5)

	// Same bytes, decoded again, must yield the identical detection list.
	again, err := DecodeImage(data)
	require.NoError(t, err)
	second, err := backend.Detect(again)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, d := range first {
		assert.Contains(t, fallbackSpecies, d.Species)
		assert.GreaterOrEqual(t, d.Confidence, 0.65)
		assert.LessOrEqual(t, d.Confidence, 0.98)
		assert.Less(t, d.Box.X1, d.Box.X2)
		assert.Less(t, d.Box.Y1, d.Box.Y2)
	}
}

func TestFallbackDiffersAcrossContent(t *testing.T) {
	backend := NewFallbackBackend()

	imgA, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	require.NoError(t, err)
	imgB, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 240, G: 230, B: 220, A: 255}))
	require.NoError(t, err)

	a, err := backend.Detect(imgA)
	require.NoError(t, err)
	b, err := backend.Detect(imgB)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "different content should not collide")
}

func TestFallbackTagAndPatternDeterministic(t *testing.T) {
	backend := NewFallbackBackend()
	img, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 90, G: 90, B: 90, A: 255}))
	require.NoError(t, err)

	tag1, err := backend.ReadTag(img, nil)
	require.NoError(t, err)
	tag2, err := backend.ReadTag(img, nil)
	require.NoError(t, err)
	assert.Equal(t, tag1, tag2)
	if tag1.OK {
		assert.NotEmpty(t, tag1.Text)
		assert.GreaterOrEqual(t, tag1.Confidence, 0.70)
	}

	match1, err := backend.MatchPattern(img, nil)
	require.NoError(t, err)
	match2, err := backend.MatchPattern(img, nil)
	require.NoError(t, err)
	assert.Equal(t, match1, match2)
}

func TestScoreHealthTracksBrightness(t *testing.T) {
	backend := NewFallbackBackend()

	bright, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 250, G: 250, B: 250, A: 255}))
	require.NoError(t, err)
	dark, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 5, G: 5, B: 5, A: 255}))
	require.NoError(t, err)

	healthy, err := backend.ScoreHealth(bright, nil)
	require.NoError(t, err)
	poor, err := backend.ScoreHealth(dark, nil)
	require.NoError(t, err)

	healthyMean := (healthy.Posture + healthy.Coat + healthy.Mobility + healthy.Alertness) / 4
	poorMean := (poor.Posture + poor.Coat + poor.Mobility + poor.Alertness) / 4
	assert.Greater(t, healthyMean, poorMean)

	for _, score := range []float64{healthy.Posture, healthy.Coat, healthy.Mobility, healthy.Alertness} {
		assert.GreaterOrEqual(t, score, 0.1)
		assert.LessOrEqual(t, score, 1.0)
	}

	// Repeatability on identical content.
	repeat, err := backend.ScoreHealth(bright, nil)
	require.NoError(t, err)
	assert.Equal(t, healthy, repeat)
}

func TestReadTagUsesSuppliedRegion(t *testing.T) {
	backend := NewFallbackBackend()
	img, err := DecodeImage(encodeTestImage(t, color.NRGBA{R: 180, G: 170, B: 150, A: 255}))
	require.NoError(t, err)

	region := &Region{X1: 0.2, Y1: 0.3, X2: 0.5, Y2: 0.6}
	reading, err := backend.ReadTag(img, region)
	require.NoError(t, err)
	if reading.OK {
		assert.Equal(t, *region, reading.Region)
	}
}
