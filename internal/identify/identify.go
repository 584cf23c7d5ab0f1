// Package identify resolves a detected animal to a concrete registered
// identity via ear tag text recognition and muzzle pattern matching.
// Resolution is soft: an unresolved identity is a valid terminal outcome,
// never an error.
package identify

import (
	"context"
	"log/slog"

	"github.com/agnivade/levenshtein"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// Options selects which identification methods to attempt.
type Options struct {
	UseTagReading      bool
	UsePatternMatching bool
}

// Resolution is the outcome of an identification attempt. AnimalID is nil
// when the method is unresolved.
type Resolution struct {
	AnimalID   *uint   `json:"animal_id"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	TagText    string  `json:"tag_text,omitempty"`
}

// Resolved reports whether a concrete animal identity was found.
func (r Resolution) Resolved() bool { return r.AnimalID != nil }

// Resolver attempts tag reading first, then pattern matching. Tag reading
// has priority when it clears its acceptance floor; otherwise the pattern
// match result is used when it clears its own floor.
type Resolver struct {
	backend  vision.Backend
	registry *Registry

	tagFloor        float64
	patternFloor    float64
	maxEditDistance int

	logger *slog.Logger
}

// NewResolver builds a resolver over the perception backend and registry.
func NewResolver(settings *conf.Settings, backend vision.Backend, registry *Registry) *Resolver {
	log := logging.ForService("identify")
	if log == nil {
		log = slog.Default().With("service", "identify")
	}
	return &Resolver{
		backend:         backend,
		registry:        registry,
		tagFloor:        settings.Identify.TagFloor,
		patternFloor:    settings.Identify.PatternFloor,
		maxEditDistance: settings.Identify.MaxEditDistance,
		logger:          log,
	}
}

// DefaultOptions returns the configured method toggles.
func DefaultOptions(settings *conf.Settings) Options {
	return Options{
		UseTagReading:      settings.Identify.TagReading,
		UsePatternMatching: settings.Identify.PatternMatching,
	}
}

// Identify attempts to resolve the animal in the given region. Backend
// failures and registry misses degrade to an unresolved result.
func (r *Resolver) Identify(ctx context.Context, img *vision.ImageData, region *vision.Region, opts Options) Resolution {
	unresolved := Resolution{Method: datastore.MethodUnresolved}
	if ctx.Err() != nil {
		return unresolved
	}

	if opts.UseTagReading {
		if res, ok := r.resolveByTag(img, region); ok {
			return res
		}
	}
	if opts.UsePatternMatching {
		if res, ok := r.resolveByPattern(img, region); ok {
			return res
		}
	}
	return unresolved
}

// resolveByTag reads the ear tag and matches the text against the known
// tag registry, exactly or within the fuzzy edit distance.
func (r *Resolver) resolveByTag(img *vision.ImageData, region *vision.Region) (Resolution, bool) {
	reading, err := r.backend.ReadTag(img, region)
	if err != nil {
		r.logger.Warn("tag reading failed", "image_path", img.Path, "error", err)
		return Resolution{}, false
	}
	if !reading.OK || reading.Confidence < r.tagFloor {
		return Resolution{}, false
	}

	tags, err := r.registry.Tags()
	if err != nil {
		r.logger.Warn("tag registry unavailable", "error", err)
		return Resolution{}, false
	}

	tag, animalID, ok := r.matchTag(reading.Text, tags)
	if !ok {
		r.logger.Debug("tag text matched no registered animal",
			"text", reading.Text, "confidence", reading.Confidence)
		return Resolution{}, false
	}

	return Resolution{
		AnimalID:   &animalID,
		Method:     datastore.MethodTagOCR,
		Confidence: reading.Confidence,
		TagText:    tag,
	}, true
}

// matchTag finds the registered tag for the recognized text. Exact matches
// win; otherwise the closest tag within the edit distance budget is used,
// ties going to the lexicographically smaller tag for determinism.
func (r *Resolver) matchTag(text string, tags map[string]uint) (string, uint, bool) {
	if id, ok := tags[text]; ok {
		return text, id, true
	}
	if r.maxEditDistance <= 0 {
		return "", 0, false
	}

	bestDistance := r.maxEditDistance + 1
	var bestTag string
	var bestID uint
	for tag, id := range tags {
		d := levenshtein.ComputeDistance(text, tag)
		if d < bestDistance || (d == bestDistance && bestTag != "" && tag < bestTag) {
			bestDistance = d
			bestTag = tag
			bestID = id
		}
	}
	if bestDistance > r.maxEditDistance {
		return "", 0, false
	}
	return bestTag, bestID, true
}

// resolveByPattern matches the muzzle print against stored reference prints.
func (r *Resolver) resolveByPattern(img *vision.ImageData, region *vision.Region) (Resolution, bool) {
	match, err := r.backend.MatchPattern(img, region)
	if err != nil {
		r.logger.Warn("pattern matching failed", "image_path", img.Path, "error", err)
		return Resolution{}, false
	}
	if !match.OK || match.Confidence < r.patternFloor {
		return Resolution{}, false
	}

	prints, err := r.registry.MuzzlePrints()
	if err != nil {
		r.logger.Warn("muzzle print registry unavailable", "error", err)
		return Resolution{}, false
	}
	animalID, ok := prints[match.Hash]
	if !ok {
		return Resolution{}, false
	}

	return Resolution{
		AnimalID:   &animalID,
		Method:     datastore.MethodMuzzlePattern,
		Confidence: match.Confidence,
	}, true
}
