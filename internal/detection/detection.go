// Package detection turns raw perception output into ordered, filtered
// detection results for the frame pipeline.
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// Detection is a single animal found in a frame. Ephemeral: produced and
// consumed within one frame, never persisted standalone.
type Detection struct {
	ID         string        `json:"detection_id"`
	Box        vision.Region `json:"bounding_box"`
	Species    string        `json:"species"`
	Confidence float64       `json:"confidence"`
}

// Result is the full outcome of detecting one image.
type Result struct {
	ImagePath        string      `json:"image_path"`
	Detections       []Detection `json:"detected_animals"`
	TotalDetected    int         `json:"total_detected"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
	Mode             vision.Mode `json:"mode"`
}

// Engine filters and orders detector output. Results never contain
// detections below the configured minimum confidence, and are always
// sorted by descending confidence.
type Engine struct {
	backend      vision.Backend
	minThreshold float64
	logger       *slog.Logger
}

// NewEngine builds a detection engine over the selected perception backend.
func NewEngine(settings *conf.Settings, backend vision.Backend) *Engine {
	log := logging.ForService("detection")
	if log == nil {
		log = slog.Default().With("service", "detection")
	}
	return &Engine{
		backend:      backend,
		minThreshold: settings.Vision.Threshold,
		logger:       log,
	}
}

// Mode reports which capability variant answers detection calls.
func (e *Engine) Mode() vision.Mode { return e.backend.Mode() }

// Detect runs detection on a decoded image.
func (e *Engine) Detect(ctx context.Context, img *vision.ImageData) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryCancellation).
			Build()
	}

	start := time.Now()
	raw, err := e.backend.Detect(img)
	if err != nil {
		return nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryDetection).
			Context("image_path", img.Path).
			Timing("detect", time.Since(start)).
			Build()
	}

	detections := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < e.minThreshold {
			continue
		}
		detections = append(detections, Detection{
			ID:         fmt.Sprintf("det_%s", uuid.New().String()[:8]),
			Box:        d.Box,
			Species:    d.Species,
			Confidence: d.Confidence,
		})
	}
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	result := &Result{
		ImagePath:        img.Path,
		Detections:       detections,
		TotalDetected:    len(detections),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Mode:             e.backend.Mode(),
	}

	e.logger.Debug("detection complete",
		"image_path", img.Path,
		"raw", len(raw),
		"kept", len(detections),
		"mode", result.Mode,
		"elapsed_ms", result.ProcessingTimeMs)
	return result, nil
}
