package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/frame"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// initPipelineRoutes registers the perception and frame processing endpoints.
func (c *Controller) initPipelineRoutes() {
	c.Group.POST("/detect", c.Detect)
	c.Group.POST("/identify", c.Identify)
	c.Group.POST("/health/assess", c.AssessHealth)
	c.Group.POST("/upload/analyze", c.UploadAnalyze)
}

// ImageRequest references an image on the server filesystem, optionally
// narrowed to a region of interest.
type ImageRequest struct {
	ImagePath string         `json:"image_path"`
	Region    *vision.Region `json:"region,omitempty"`
	AnimalID  *uint          `json:"animal_id,omitempty"`
}

func (c *Controller) loadRequestImage(ctx echo.Context, req *ImageRequest) (*vision.ImageData, error) {
	if err := ctx.Bind(req); err != nil {
		return nil, errors.New(err).Component("api").Category(errors.CategoryValidation).Build()
	}
	if strings.TrimSpace(req.ImagePath) == "" {
		return nil, errors.Newf("image_path is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return vision.LoadImage(req.ImagePath)
}

// Detect runs animal detection on an image without touching the database.
func (c *Controller) Detect(ctx echo.Context) error {
	var req ImageRequest
	img, err := c.loadRequestImage(ctx, &req)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load image", 0)
	}

	result, err := c.Pipeline.Engine.Detect(ctx.Request().Context(), img)
	if err != nil {
		return c.HandleError(ctx, err, "Detection failed", 0)
	}
	return ctx.JSON(http.StatusOK, result)
}

// Identify attempts to resolve the animal in an image to a registered
// identity. Unresolved is a normal outcome, not an error.
func (c *Controller) Identify(ctx echo.Context) error {
	var req ImageRequest
	img, err := c.loadRequestImage(ctx, &req)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load image", 0)
	}

	resolution := c.Pipeline.Resolver.Identify(
		ctx.Request().Context(), img, req.Region, identify.DefaultOptions(c.Settings))

	response := map[string]any{
		"identity": resolution,
		"resolved": resolution.Resolved(),
	}
	if resolution.Resolved() {
		animal, err := c.DS.GetAnimal(*resolution.AnimalID)
		if err == nil {
			response["animal"] = animal
		}
	}
	return ctx.JSON(http.StatusOK, response)
}

// AssessHealth scores the animal in an image. When animal_id is supplied the
// assessment is committed: health record, animal health cache and alert
// reconciliation, all in one transaction.
func (c *Controller) AssessHealth(ctx echo.Context) error {
	var req ImageRequest
	img, err := c.loadRequestImage(ctx, &req)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load image", 0)
	}

	assessment, err := c.Pipeline.Assessor.Assess(ctx.Request().Context(), img, req.Region)
	if err != nil {
		return c.HandleError(ctx, err, "Health assessment failed", 0)
	}

	response := map[string]any{"assessment": assessment}
	if req.AnimalID != nil {
		animal, err := c.DS.GetAnimal(*req.AnimalID)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to get animal", 0)
		}

		record := &datastore.HealthRecord{
			AnimalID:           animal.ID,
			Status:             assessment.Status,
			Confidence:         assessment.Confidence,
			PostureScore:       assessment.PostureScore,
			CoatConditionScore: assessment.CoatConditionScore,
			MobilityScore:      assessment.MobilityScore,
			AlertnessScore:     assessment.AlertnessScore,
			OverallScore:       assessment.OverallScore,
			Symptoms:           assessment.Symptoms,
			PositiveIndicators: assessment.PositiveIndicators,
			Recommendations:    assessment.Recommendations,
			ImagePath:          img.Path,
			AnalysisType:       "image",
			FallbackMode:       assessment.FallbackMode,
			CreatedAt:          time.Now(),
		}
		err = c.DS.Transaction(func(tx datastore.Interface) error {
			if err := tx.SaveHealthRecord(record); err != nil {
				return err
			}
			if err := tx.UpdateAnimalHealthCache(animal.ID, assessment.Status, time.Now()); err != nil {
				return err
			}
			return c.Pipeline.Alerts.WithStore(tx).ReconcileHealth(
				ctx.Request().Context(), animal.ID, animal.TagID, assessment, &record.ID, img.Path)
		})
		if err != nil {
			return c.HandleError(ctx, err, "Failed to commit assessment", 0)
		}
		response["health_record_id"] = record.ID
		response["animal_id"] = animal.ID
	}

	return ctx.JSON(http.StatusOK, response)
}

// UploadAnalyze accepts a multipart image upload, stores it under the
// configured upload directory and runs a full orchestrated frame on it.
// An optional animal_id form field ties unresolved detections to a known
// animal.
func (c *Controller) UploadAnalyze(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, err, "Missing image upload", http.StatusBadRequest)
	}

	var animalID *uint
	if raw := ctx.FormValue("animal_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid animal_id", http.StatusBadRequest)
		}
		id := uint(parsed)
		animalID = &id
	}

	path, err := c.saveUpload(fileHeader)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store upload", 0)
	}

	img, err := vision.LoadImage(path)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to decode uploaded image", 0)
	}

	result, err := c.Pipeline.Orchestrator.ProcessFrame(ctx.Request().Context(), frame.Request{
		Image:    img,
		Source:   frame.SourceUpload,
		AnimalID: animalID,
		Options:  identify.DefaultOptions(c.Settings),
	})
	if err != nil {
		return c.HandleError(ctx, err, "Frame processing failed", 0)
	}
	return ctx.JSON(http.StatusOK, result)
}

// saveUpload writes the multipart file under the upload directory with a
// collision-free name.
func (c *Controller) saveUpload(fileHeader *multipart.FileHeader) (string, error) {
	dir := c.Settings.Realtime.UploadPath
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return "", errors.Newf("unsupported image type: %s", ext).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", errors.New(err).Component("api").Category(errors.CategoryFileIO).Build()
	}
	defer func() { _ = src.Close() }()

	name := time.Now().Format("20060102_150405") + "_" + uuid.New().String()[:8] + ext
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errors.New(err).Component("api").Category(errors.CategoryFileIO).Build()
	}
	return path, nil
}
