package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a settings struct that passes validation.
func validSettings() *Settings {
	s := &Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "test.db"
	s.Vision.Threshold = 0.3
	s.Identify.TagFloor = 0.6
	s.Identify.PatternFloor = 0.7
	s.Identify.MaxEditDistance = 1
	s.Health.HealthyFloor = 0.8
	s.Health.AttentionFloor = 0.5
	s.Health.MinActionableConfidence = 0.5
	s.Attendance.MissingThresholdDays = 1
	s.Realtime.Interval = 30
	return s
}

func TestValidateSettingsValid(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsNoDatabase(t *testing.T) {
	s := validSettings()
	s.Output.SQLite.Enabled = false

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.sqlite or output.mysql")
}

func TestValidateSettingsThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"detection threshold above one", func(s *Settings) { s.Vision.Threshold = 1.5 }},
		{"negative tag floor", func(s *Settings) { s.Identify.TagFloor = -0.1 }},
		{"attention floor above healthy floor", func(s *Settings) { s.Health.AttentionFloor = 0.9 }},
		{"zero capture interval", func(s *Settings) { s.Realtime.Interval = 0 }},
		{"zero missing threshold", func(s *Settings) { s.Attendance.MissingThresholdDays = 0 }},
		{"mqtt enabled without broker", func(s *Settings) {
			s.Realtime.MQTT.Enabled = true
			s.Realtime.MQTT.Broker = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestCaptureInterval(t *testing.T) {
	s := validSettings()
	assert.Equal(t, "30s", s.CaptureInterval().String())
}
