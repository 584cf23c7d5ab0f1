package conf

import (
	"errors"
	"fmt"
	"os"
)

// ValidateSettings validates the settings loaded from the configuration file
// and returns an error describing every problem found.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateOutputSettings(settings, &ve)
	validateVisionSettings(settings, &ve)
	validateIdentifySettings(settings, &ve)
	validateHealthSettings(settings, &ve)
	validateRealtimeSettings(settings, &ve)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidationError holds a list of configuration validation failures.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", ve.Errors)
}

func (ve *ValidationError) add(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

func validateOutputSettings(settings *Settings, ve *ValidationError) {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		ve.add("one of output.sqlite or output.mysql must be enabled")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		ve.add("output.sqlite.path must not be empty")
	}
	if settings.Output.MySQL.Enabled {
		if settings.Output.MySQL.Host == "" || settings.Output.MySQL.Database == "" {
			ve.add("output.mysql.host and output.mysql.database must be set")
		}
	}
}

func validateVisionSettings(settings *Settings, ve *ValidationError) {
	if settings.Vision.Threshold < 0 || settings.Vision.Threshold > 1 {
		ve.add("vision.threshold must be between 0.0 and 1.0, got %f", settings.Vision.Threshold)
	}
	if settings.Vision.ModelPath != "" {
		if _, err := os.Stat(settings.Vision.ModelPath); errors.Is(err, os.ErrNotExist) {
			// A missing model is not fatal, the fallback backend takes over,
			// but it is almost always a configuration mistake worth flagging.
			ve.add("vision.modelpath %q does not exist", settings.Vision.ModelPath)
		}
	}
	if settings.Vision.Threads < 0 {
		ve.add("vision.threads must not be negative, got %d", settings.Vision.Threads)
	}
}

func validateIdentifySettings(settings *Settings, ve *ValidationError) {
	if settings.Identify.TagFloor < 0 || settings.Identify.TagFloor > 1 {
		ve.add("identify.tagfloor must be between 0.0 and 1.0, got %f", settings.Identify.TagFloor)
	}
	if settings.Identify.PatternFloor < 0 || settings.Identify.PatternFloor > 1 {
		ve.add("identify.patternfloor must be between 0.0 and 1.0, got %f", settings.Identify.PatternFloor)
	}
	if settings.Identify.MaxEditDistance < 0 {
		ve.add("identify.maxeditdistance must not be negative, got %d", settings.Identify.MaxEditDistance)
	}
}

func validateHealthSettings(settings *Settings, ve *ValidationError) {
	h := settings.Health
	if h.HealthyFloor < 0 || h.HealthyFloor > 1 || h.AttentionFloor < 0 || h.AttentionFloor > 1 {
		ve.add("health floors must be between 0.0 and 1.0")
	}
	if h.AttentionFloor >= h.HealthyFloor {
		ve.add("health.attentionfloor (%f) must be below health.healthyfloor (%f)", h.AttentionFloor, h.HealthyFloor)
	}
	if h.MinActionableConfidence < 0 || h.MinActionableConfidence > 1 {
		ve.add("health.minactionableconfidence must be between 0.0 and 1.0, got %f", h.MinActionableConfidence)
	}
}

func validateRealtimeSettings(settings *Settings, ve *ValidationError) {
	if settings.Realtime.Interval <= 0 {
		ve.add("realtime.interval must be positive, got %d", settings.Realtime.Interval)
	}
	if settings.Attendance.MissingThresholdDays < 1 {
		ve.add("attendance.missingthresholddays must be at least 1, got %d", settings.Attendance.MissingThresholdDays)
	}
	if settings.Realtime.MQTT.Enabled && settings.Realtime.MQTT.Broker == "" {
		ve.add("realtime.mqtt.broker must be set when MQTT is enabled")
	}
}
