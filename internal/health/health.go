// Package health derives a structured health assessment from the four
// visual sub-scores produced by the perception backend.
package health

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// Sub-score thresholds for findings. Findings are explanatory only; status
// derivation uses the overall score alone.
const (
	indicatorFloor = 0.8
	symptomCeiling = 0.6
)

// Assessment is one committed health evaluation. Immutable once stored,
// except for veterinarian verification.
type Assessment struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`

	PostureScore       float64 `json:"posture_score"`
	CoatConditionScore float64 `json:"coat_condition_score"`
	MobilityScore      float64 `json:"mobility_score"`
	AlertnessScore     float64 `json:"alertness_score"`
	OverallScore       float64 `json:"overall_score"`

	Symptoms           []string `json:"detected_symptoms"`
	PositiveIndicators []string `json:"positive_indicators"`
	Recommendations    []string `json:"recommendations"`

	FallbackMode     bool    `json:"fallback_mode"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Assessor evaluates image regions into assessments.
type Assessor struct {
	backend        vision.Backend
	healthyFloor   float64
	attentionFloor float64
	logger         *slog.Logger
}

// NewAssessor builds an assessor over the perception backend.
func NewAssessor(settings *conf.Settings, backend vision.Backend) *Assessor {
	log := logging.ForService("health")
	if log == nil {
		log = slog.Default().With("service", "health")
	}
	return &Assessor{
		backend:        backend,
		healthyFloor:   settings.Health.HealthyFloor,
		attentionFloor: settings.Health.AttentionFloor,
		logger:         log,
	}
}

// Assess scores the animal in the given region. The overall score is the
// unweighted mean of the four sub-scores; status thresholds are inclusive
// on the upper class.
func (a *Assessor) Assess(ctx context.Context, img *vision.ImageData, region *vision.Region) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, errors.New(err).
			Component("health").
			Category(errors.CategoryCancellation).
			Build()
	}

	start := time.Now()
	scores, err := a.backend.ScoreHealth(img, region)
	if err != nil {
		return Assessment{}, errors.New(err).
			Component("health").
			Category(errors.CategoryHealthAssess).
			Context("image_path", img.Path).
			Build()
	}

	overall := (scores.Posture + scores.Coat + scores.Mobility + scores.Alertness) / 4
	status := a.statusFor(overall)

	assessment := Assessment{
		Status:             status,
		Confidence:         scores.Confidence,
		PostureScore:       scores.Posture,
		CoatConditionScore: scores.Coat,
		MobilityScore:      scores.Mobility,
		AlertnessScore:     scores.Alertness,
		OverallScore:       round2(overall),
		Symptoms:           detectSymptoms(scores),
		PositiveIndicators: positiveIndicators(scores),
		Recommendations:    Recommendations(status),
		FallbackMode:       a.backend.Mode() == vision.ModeDeterministicFallback,
		ProcessingTimeMs:   float64(time.Since(start).Microseconds()) / 1000.0,
	}

	a.logger.Debug("assessment complete",
		"image_path", img.Path,
		"status", status,
		"overall_score", assessment.OverallScore,
		"confidence", assessment.Confidence)
	return assessment, nil
}

// statusFor maps the overall score to a status. Boundaries are inclusive
// on the healthier class: exactly 0.8 is healthy, exactly 0.5 is
// needs_attention.
func (a *Assessor) statusFor(overall float64) string {
	switch {
	case overall >= a.healthyFloor:
		return datastore.HealthStatusHealthy
	case overall >= a.attentionFloor:
		return datastore.HealthStatusAttention
	default:
		return datastore.HealthStatusCritical
	}
}

func detectSymptoms(scores vision.HealthScores) []string {
	symptoms := []string{}
	if scores.Posture < symptomCeiling {
		symptoms = append(symptoms, "poor_posture")
	}
	if scores.Coat < symptomCeiling {
		symptoms = append(symptoms, "coat_issues")
	}
	if scores.Mobility < symptomCeiling {
		symptoms = append(symptoms, "mobility_issues")
	}
	if scores.Alertness < symptomCeiling {
		symptoms = append(symptoms, "lethargy")
	}
	return symptoms
}

func positiveIndicators(scores vision.HealthScores) []string {
	indicators := []string{}
	if scores.Posture >= indicatorFloor {
		indicators = append(indicators, "good_posture")
	}
	if scores.Coat >= indicatorFloor {
		indicators = append(indicators, "healthy_coat")
	}
	if scores.Mobility >= indicatorFloor {
		indicators = append(indicators, "normal_mobility")
	}
	if scores.Alertness >= indicatorFloor {
		indicators = append(indicators, "alert_behavior")
	}
	return indicators
}

// Recommendations returns the care guidance for a status.
func Recommendations(status string) []string {
	switch status {
	case datastore.HealthStatusHealthy:
		return []string{
			"Continue regular health monitoring",
			"Maintain current nutrition program",
			"Keep vaccination schedule up to date",
		}
	case datastore.HealthStatusCritical:
		return []string{
			"URGENT: Contact veterinarian immediately",
			"Isolate animal from the herd",
			"Ensure access to fresh water and shelter",
			"Do not administer medication without vet guidance",
			"Document all symptoms and timeline",
		}
	default:
		return []string{
			"Schedule veterinary checkup within 48 hours",
			"Monitor eating and drinking patterns",
			"Isolate from herd if symptoms worsen",
			"Keep detailed observation logs",
		}
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
