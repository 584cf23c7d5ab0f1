// config.go: settings struct for HerdWatch-Go and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for application log files.
type LogConfig struct {
	Enabled  bool   // true to enable logging to file
	Path     string // path to log file
	Rotation string // rotation policy: "daily", "weekly" or "size"
	MaxSize  int64  // max size in bytes for size-based rotation
}

// Log rotation policies.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    // name of the node, used as identifier in logs and MQTT client ID
	Log  LogConfig // application log settings
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable SQLite output
		Path    string // path to SQLite database
	}
	MySQL struct {
		Enabled  bool   // true to enable MySQL output
		Username string // MySQL username
		Password string // MySQL password
		Database string // MySQL database name
		Host     string // MySQL host
		Port     string // MySQL port
	}
}

// VisionSettings contains settings for the perception backend.
type VisionSettings struct {
	ModelPath string  // path to TensorFlow Lite detection model, empty for fallback mode
	Threshold float64 // minimum confidence for a detection to be kept
	Threads   int     // number of CPU threads for inference, 0 for automatic
}

// IdentifySettings contains settings for animal identification.
type IdentifySettings struct {
	TagReading      bool    // true to attempt ear tag text recognition
	PatternMatching bool    // true to attempt visual pattern matching
	TagFloor        float64 // minimum confidence to accept a tag reading
	PatternFloor    float64 // minimum confidence to accept a pattern match
	MaxEditDistance int     // maximum edit distance for fuzzy tag matching
	RegistryTTL     int     // known tag registry cache TTL in minutes
}

// HealthSettings contains thresholds for health status derivation.
type HealthSettings struct {
	HealthyFloor            float64 // overall score at or above this is healthy
	AttentionFloor          float64 // overall score at or above this is needs_attention
	MinActionableConfidence float64 // assessments below this confidence never trigger alerts
}

// AttendanceSettings contains settings for attendance tracking.
type AttendanceSettings struct {
	MissingThresholdDays int // days without attendance before a missing alert opens
}

// CameraSettings contains settings for the camera frame source.
type CameraSettings struct {
	Source string // frame source: "simulated", a file path or a directory path
	Name   string // camera name used in logs and frame metadata
}

// MQTTSettings contains settings for MQTT publishing.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT publishing of frame results and alerts
	Broker   string // MQTT broker URL, e.g. tcp://localhost:1883
	Topic    string // base topic for published messages
	Username string // MQTT username
	Password string // MQTT password
}

// RealtimeSettings contains settings for realtime monitoring.
type RealtimeSettings struct {
	Interval   int            // capture interval in seconds
	UploadPath string         // path where uploaded and captured images are stored
	Camera     CameraSettings // camera frame source settings
	MQTT       MQTTSettings   // MQTT settings
}

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Enabled bool   // true to enable the web server
	Port    string // port to listen on
}

// SentrySettings contains settings for error telemetry.
type SentrySettings struct {
	Enabled bool   // true to enable Sentry error reporting
	DSN     string // Sentry DSN
}

// Settings contains all application settings.
type Settings struct {
	Debug bool // true to enable debug output

	Main       MainSettings
	Output     OutputSettings
	Vision     VisionSettings
	Identify   IdentifySettings
	Health     HealthSettings
	Attendance AttendanceSettings
	Realtime   RealtimeSettings
	WebServer  WebServerSettings
	Sentry     SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings
// struct and stores it as the active settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Defaults are defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first default
// config path and reads it back in.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// Setting returns the current settings instance.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the active settings instance. Intended for tests.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// CaptureInterval returns the realtime capture interval as a duration.
func (s *Settings) CaptureInterval() time.Duration {
	return time.Duration(s.Realtime.Interval) * time.Second
}

// GetDefaultConfigPaths returns the list of directories searched for the
// configuration file, in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "herdwatch-go"))
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "herdwatch-go"))
	}

	// Current working directory is always searched last.
	paths = append(paths, ".")

	if len(paths) == 0 {
		return nil, fmt.Errorf("no valid config paths found")
	}

	return paths, nil
}
