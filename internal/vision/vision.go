// Package vision provides the perception capability behind detection,
// identification and health scoring. Two backends satisfy the same
// contract: a TensorFlow Lite model backend and a deterministic fallback
// that synthesizes reproducible results from the image content. The
// backend is selected once at startup; callers never branch on it.
package vision

import (
	"log/slog"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

// Mode identifies which capability variant produced a result.
type Mode string

const (
	// ModeModelBacked means results come from real model inference.
	ModeModelBacked Mode = "model"
	// ModeDeterministicFallback means results are synthesized from the
	// image content hash.
	ModeDeterministicFallback Mode = "fallback"
)

// Region is a bounding box in normalized [0,1] image coordinates.
type Region struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// RawDetection is a single unfiltered detector output.
type RawDetection struct {
	Box        Region
	Species    string
	Confidence float64
}

// TagReading is the outcome of ear tag text recognition. OK is false when
// no readable tag was found, which is a soft miss, not an error.
type TagReading struct {
	OK         bool
	Text       string
	Confidence float64
	Region     Region
}

// PatternMatch is the outcome of muzzle pattern matching against stored
// reference prints.
type PatternMatch struct {
	OK         bool
	Hash       string
	Confidence float64
}

// HealthScores carries the four visual sub-scores in [0,1] plus the
// assessment certainty. Status derivation from the scores is owned by the
// health assessor, not the backend.
type HealthScores struct {
	Posture    float64
	Coat       float64
	Mobility   float64
	Alertness  float64
	Confidence float64
}

// Backend is the perception capability contract.
type Backend interface {
	Detect(img *ImageData) ([]RawDetection, error)
	ReadTag(img *ImageData, region *Region) (TagReading, error)
	MatchPattern(img *ImageData, region *Region) (PatternMatch, error)
	ScoreHealth(img *ImageData, region *Region) (HealthScores, error)
	Mode() Mode
}

var logger *slog.Logger

func init() {
	logger = logging.ForService("vision")
	if logger == nil {
		logger = slog.Default().With("service", "vision")
	}
}

// New selects the perception backend for this process. A model path that
// cannot be loaded is not fatal: the deterministic fallback takes over and
// the downgrade is logged once.
func New(settings *conf.Settings) Backend {
	if settings.Vision.ModelPath != "" {
		backend, err := NewModelBackend(settings)
		if err == nil {
			logger.Info("model backend initialized",
				"model_path", settings.Vision.ModelPath,
				"threads", settings.Vision.Threads)
			return backend
		}
		logger.Warn("model unavailable, using deterministic fallback",
			"model_path", settings.Vision.ModelPath,
			"error", err)
	} else {
		logger.Info("no model configured, using deterministic fallback")
	}
	return NewFallbackBackend()
}
