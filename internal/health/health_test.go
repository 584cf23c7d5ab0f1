package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// scoreBackend returns fixed sub-scores.
type scoreBackend struct {
	scores vision.HealthScores
	mode   vision.Mode
}

func (s *scoreBackend) Detect(img *vision.ImageData) ([]vision.RawDetection, error) {
	return nil, nil
}

func (s *scoreBackend) ReadTag(img *vision.ImageData, region *vision.Region) (vision.TagReading, error) {
	return vision.TagReading{}, nil
}

func (s *scoreBackend) MatchPattern(img *vision.ImageData, region *vision.Region) (vision.PatternMatch, error) {
	return vision.PatternMatch{}, nil
}

func (s *scoreBackend) ScoreHealth(img *vision.ImageData, region *vision.Region) (vision.HealthScores, error) {
	return s.scores, nil
}

func (s *scoreBackend) Mode() vision.Mode {
	if s.mode == "" {
		return vision.ModeDeterministicFallback
	}
	return s.mode
}

func testAssessor(scores vision.HealthScores) *Assessor {
	settings := &conf.Settings{}
	settings.Health.HealthyFloor = 0.8
	settings.Health.AttentionFloor = 0.5
	return NewAssessor(settings, &scoreBackend{scores: scores})
}

func assess(t *testing.T, scores vision.HealthScores) Assessment {
	t.Helper()
	assessment, err := testAssessor(scores).Assess(context.Background(), &vision.ImageData{}, nil)
	require.NoError(t, err)
	return assessment
}

func uniformScores(v, confidence float64) vision.HealthScores {
	return vision.HealthScores{Posture: v, Coat: v, Mobility: v, Alertness: v, Confidence: confidence}
}

func TestAssessHealthyAnimal(t *testing.T) {
	assessment := assess(t, vision.HealthScores{
		Posture: 0.9, Coat: 0.9, Mobility: 0.9, Alertness: 0.9, Confidence: 0.88,
	})

	assert.Equal(t, datastore.HealthStatusHealthy, assessment.Status)
	assert.InDelta(t, 0.9, assessment.OverallScore, 1e-9)
	assert.InDelta(t, 0.88, assessment.Confidence, 1e-9)
	assert.Empty(t, assessment.Symptoms)
	assert.ElementsMatch(t, []string{"good_posture", "healthy_coat", "normal_mobility", "alert_behavior"},
		assessment.PositiveIndicators)
	assert.Contains(t, assessment.Recommendations, "Continue regular health monitoring")
	assert.True(t, assessment.FallbackMode)
}

func TestStatusBoundariesInclusive(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  string
	}{
		{"exactly healthy floor", 0.8, datastore.HealthStatusHealthy},
		{"just below healthy floor", 0.79, datastore.HealthStatusAttention},
		{"exactly attention floor", 0.5, datastore.HealthStatusAttention},
		{"just below attention floor", 0.49, datastore.HealthStatusCritical},
		{"deep critical", 0.2, datastore.HealthStatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := assess(t, uniformScores(tt.score, 0.9))
			assert.Equal(t, tt.want, assessment.Status)
		})
	}
}

func TestOverallScoreIsUnweightedMean(t *testing.T) {
	assessment := assess(t, vision.HealthScores{
		Posture: 1.0, Coat: 0.6, Mobility: 0.8, Alertness: 0.6, Confidence: 0.7,
	})
	assert.InDelta(t, 0.75, assessment.OverallScore, 1e-9)
	assert.Equal(t, datastore.HealthStatusAttention, assessment.Status)
}

func TestSymptomRules(t *testing.T) {
	assessment := assess(t, vision.HealthScores{
		Posture: 0.45, Coat: 0.55, Mobility: 0.85, Alertness: 0.3, Confidence: 0.7,
	})

	assert.ElementsMatch(t, []string{"poor_posture", "coat_issues", "lethargy"}, assessment.Symptoms)
	assert.ElementsMatch(t, []string{"normal_mobility"}, assessment.PositiveIndicators)
	assert.Equal(t, datastore.HealthStatusCritical, assessment.Status)
	assert.Contains(t, assessment.Recommendations, "URGENT: Contact veterinarian immediately")
}

func TestLowConfidenceStillAssessed(t *testing.T) {
	// Low confidence dampens alerting downstream but never discards the
	// assessment itself.
	assessment := assess(t, uniformScores(0.3, 0.2))
	assert.Equal(t, datastore.HealthStatusCritical, assessment.Status)
	assert.InDelta(t, 0.2, assessment.Confidence, 1e-9)
}

func TestAssessCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testAssessor(uniformScores(0.9, 0.9)).Assess(ctx, &vision.ImageData{}, nil)
	require.Error(t, err)
}
