package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/observability"
)

func identifyOptionsAll() identify.Options {
	return identify.Options{UseTagReading: true, UsePatternMatching: true}
}

func writeTestImage(t *testing.T, path string, fill color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.png")
	writeTestImage(t, path, color.NRGBA{R: 100, G: 120, B: 90, A: 255})

	source := NewFileSource(path)
	frame, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, frame.Image.Path)
	assert.False(t, frame.CapturedAt.IsZero())

	// The same snapshot can be captured again on the next tick.
	again, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frame.Image.Bytes, again.Image.Bytes)
}

func TestFileSourceMissingFile(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "absent.png"))
	_, err := source.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDirectorySourceDrainsInOrder(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "a.png")
	newer := filepath.Join(dir, "b.png")
	writeTestImage(t, older, color.NRGBA{R: 10, A: 255})
	writeTestImage(t, newer, color.NRGBA{R: 200, A: 255})

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	// A non-image file in the drop directory is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	source := NewDirectorySource(dir)

	first, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, older, first.Image.Path)

	second, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newer, second.Image.Path)

	_, err = source.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDirectorySourceSkipsUndecodable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o644))

	source := NewDirectorySource(dir)
	_, err := source.NextFrame(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFrame))

	// The corrupt file is not retried.
	_, err = source.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestSimulatedSource(t *testing.T) {
	source := NewSimulatedSource()

	frame, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "png", frame.Image.Format)
	assert.NotEmpty(t, frame.Image.Bytes)

	next, err := source.NextFrame(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, frame.Image.Bytes, next.Image.Bytes, "simulated frames vary across ticks")
}

func TestMonitorDropsTickWhileInFlight(t *testing.T) {
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	monitor := NewMonitor(NewSimulatedSource(), nil, time.Second, identifyOptionsAll(), nil, metrics)
	monitor.inFlight.Store(true)

	monitor.tick(context.Background())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DroppedTicks), 1e-9)

	monitor.tick(context.Background())
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.DroppedTicks), 1e-9)
}
