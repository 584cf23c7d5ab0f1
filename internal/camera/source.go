// Package camera supplies frames to the orchestrator at a fixed interval
// and guarantees at most one frame in flight per source.
package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// ErrNoFrame signals that a source has nothing new to offer. Not an
// error condition; the monitor simply waits for the next tick.
var ErrNoFrame = errors.NewStd("no frame available")

// Frame is one captured image with its capture timestamp.
type Frame struct {
	Image      *vision.ImageData
	CapturedAt time.Time
}

// FrameSource produces the next frame, or ErrNoFrame when none is
// available.
type FrameSource interface {
	NextFrame(ctx context.Context) (*Frame, error)
	Name() string
}

// FileSource re-reads a single image file on every tick, modeling a
// camera that overwrites its latest snapshot in place.
type FileSource struct {
	path string
}

// NewFileSource builds a source over a snapshot file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(f.path); err != nil {
		return nil, ErrNoFrame
	}
	img, err := vision.LoadImage(f.path)
	if err != nil {
		return nil, err
	}
	return &Frame{Image: img, CapturedAt: time.Now()}, nil
}

// DirectorySource watches a drop directory and serves the oldest
// unprocessed image, so a backlog drains in capture order.
type DirectorySource struct {
	dir string

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDirectorySource builds a source over an image drop directory.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir, seen: make(map[string]struct{})}
}

func (d *DirectorySource) Name() string { return "dir:" + d.dir }

func (d *DirectorySource) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errors.New(err).
			Component("camera").
			Category(errors.CategoryFileIO).
			Context("dir", d.dir).
			Build()
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	d.mu.Lock()
	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		if _, ok := d.seen[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: path, modTime: info.ModTime()})
	}
	d.mu.Unlock()

	if len(candidates) == 0 {
		return nil, ErrNoFrame
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})
	next := candidates[0]

	img, err := vision.LoadImage(next.path)
	if err != nil {
		// Skip undecodable files instead of retrying them forever.
		d.markSeen(next.path)
		return nil, err
	}
	d.markSeen(next.path)
	return &Frame{Image: img, CapturedAt: next.modTime}, nil
}

func (d *DirectorySource) markSeen(path string) {
	d.mu.Lock()
	d.seen[path] = struct{}{}
	d.mu.Unlock()
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// SimulatedSource synthesizes a new frame on every call. Each frame is a
// small PNG with randomized content, so the deterministic fallback
// backend still produces varied results across ticks.
type SimulatedSource struct {
	rng *rand.Rand
	mu  sync.Mutex
}

// NewSimulatedSource builds a synthetic frame generator.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // demo frames, not security sensitive
	}
}

func (s *SimulatedSource) Name() string { return "simulated" }

func (s *SimulatedSource) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	base := color.NRGBA{
		R: uint8(s.rng.Intn(256)), //nolint:gosec // bounded by Intn(256)
		G: uint8(s.rng.Intn(256)), //nolint:gosec // bounded by Intn(256)
		B: uint8(s.rng.Intn(256)), //nolint:gosec // bounded by Intn(256)
		A: 255,
	}
	noise := s.rng.Int63()
	s.mu.Unlock()

	canvas := image.NewNRGBA(image.Rect(0, 0, 96, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 96; x++ {
			shade := base
			shade.R += uint8((x ^ y ^ int(noise)) & 0x0f) //nolint:gosec // low nibble only
			canvas.SetNRGBA(x, y, shade)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, errors.New(err).Component("camera").Category(errors.CategoryCamera).Build()
	}
	img, err := vision.DecodeImage(buf.Bytes())
	if err != nil {
		return nil, err
	}
	img.Path = "simulated://frame"
	return &Frame{Image: img, CapturedAt: time.Now()}, nil
}
