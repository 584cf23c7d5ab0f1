// entities.go: GORM entities for animals, health records, attendance and alerts.
package datastore

import (
	"time"
)

// DateFormat is the calendar day format used for attendance reconciliation keys.
const DateFormat = "2006-01-02"

// Species labels for registered animals.
const (
	SpeciesCattle  = "cattle"
	SpeciesGoat    = "goat"
	SpeciesSheep   = "sheep"
	SpeciesPig     = "pig"
	SpeciesHorse   = "horse"
	SpeciesPoultry = "poultry"
	SpeciesOther   = "other"
)

// KnownSpecies lists every accepted species label.
var KnownSpecies = []string{
	SpeciesCattle, SpeciesGoat, SpeciesSheep,
	SpeciesPig, SpeciesHorse, SpeciesPoultry, SpeciesOther,
}

// Health status values, cached on the animal from its latest health record.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusAttention = "needs_attention"
	HealthStatusCritical  = "critical"
	HealthStatusUnknown   = "unknown"
)

// Identification methods recorded on attendance.
const (
	MethodTagOCR        = "tag_ocr"
	MethodMuzzlePattern = "muzzle_pattern"
	MethodManual        = "manual"
	MethodUnresolved    = "unresolved"
)

// Alert types.
const (
	AlertHealthCritical    = "health_critical"
	AlertHealthAttention   = "health_attention"
	AlertMissingAttendance = "missing_attendance"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Animal represents a registered livestock animal.
type Animal struct {
	ID              uint    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TagID           string  `gorm:"size:50;uniqueIndex;not null" json:"tag_id"`
	Name            string  `gorm:"size:100" json:"name"`
	Species         string  `gorm:"size:20;default:cattle" json:"species"`
	Breed           string  `gorm:"size:100" json:"breed,omitempty"`
	AgeMonths       int     `gorm:"" json:"age_months,omitempty"`
	Gender          string  `gorm:"size:10;default:unknown" json:"gender,omitempty"`
	WeightKG        float64 `gorm:"column:weight_kg" json:"weight_kg,omitempty"`
	MuzzlePrintHash string  `gorm:"size:256" json:"muzzle_print_hash,omitempty"` // reference print for pattern matching
	Notes           string  `gorm:"type:text" json:"notes,omitempty"`
	ImagePath       string  `gorm:"size:500" json:"image_path,omitempty"`

	// Health status cached from the latest health record. Updated by the
	// frame orchestrator whenever an assessment is committed.
	CurrentHealthStatus string     `gorm:"size:20;default:unknown" json:"current_health_status"`
	LastHealthCheck     *time.Time `gorm:"" json:"last_health_check,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthRecord stores a single health assessment for an animal.
// Records are immutable after creation except for veterinarian verification.
type HealthRecord struct {
	ID       uint `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AnimalID uint `gorm:"index;not null" json:"animal_id"`

	Status     string  `gorm:"size:20;default:unknown" json:"status"`
	Confidence float64 `json:"confidence"` // assessment certainty, independent of the scores below

	PostureScore       float64 `json:"posture_score"`
	CoatConditionScore float64 `json:"coat_condition_score"`
	MobilityScore      float64 `json:"mobility_score"`
	AlertnessScore     float64 `json:"alertness_score"`
	OverallScore       float64 `json:"overall_score"`

	Symptoms           []string `gorm:"serializer:json" json:"detected_symptoms"`
	PositiveIndicators []string `gorm:"serializer:json" json:"positive_indicators"`
	Recommendations    []string `gorm:"serializer:json" json:"recommendations"`

	ImagePath    string `gorm:"size:500" json:"image_path,omitempty"`
	AnalysisType string `gorm:"size:50;default:image" json:"analysis_type"` // image, manual
	FallbackMode bool   `json:"fallback_mode"`                              // true when produced by the deterministic fallback backend

	VetVerified  bool   `json:"vet_verified"`
	VetNotes     string `gorm:"type:text" json:"vet_notes,omitempty"`
	VetDiagnosis string `gorm:"size:200" json:"vet_diagnosis,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Attendance is a once-per-day presence record for an animal.
// At most one row exists per (animal_id, date); the composite unique index
// enforces the reconciliation key at the storage boundary.
type Attendance struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AnimalID uint   `gorm:"not null;uniqueIndex:idx_attendance_animal_date" json:"animal_id"`
	Date     string `gorm:"size:10;index;uniqueIndex:idx_attendance_animal_date" json:"date"` // calendar day, DateFormat

	DetectedAt           time.Time `json:"detected_at"`
	DetectionConfidence  float64   `json:"detection_confidence"`
	IdentificationMethod string    `gorm:"size:50;default:manual" json:"identification_method"`
	LocationZone         string    `gorm:"size:100" json:"location_zone,omitempty"`
	ImagePath            string    `gorm:"size:500" json:"image_path,omitempty"`
}

// Alert is a notification about animal health or attendance. Missing-animal
// alerts may reference no single animal, hence the nullable AnimalID.
type Alert struct {
	ID       uint  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AnimalID *uint `gorm:"index:idx_alert_animal_type" json:"animal_id,omitempty"`

	AlertType string `gorm:"size:50;index:idx_alert_animal_type" json:"alert_type"`
	Severity  string `gorm:"size:20;default:medium" json:"severity"`
	Title     string `gorm:"size:200;not null" json:"title"`
	Message   string `gorm:"type:text;not null" json:"message"`

	Resolved        bool       `gorm:"index" json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `gorm:"size:100" json:"resolved_by,omitempty"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes,omitempty"`

	HealthRecordID *uint  `json:"health_record_id,omitempty"`
	ImagePath      string `gorm:"size:500" json:"image_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
