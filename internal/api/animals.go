package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
)

// initAnimalRoutes registers the animal registry endpoints.
func (c *Controller) initAnimalRoutes() {
	c.Group.GET("/animals", c.GetAnimals)
	c.Group.POST("/animals", c.CreateAnimal)
	c.Group.GET("/animals/tag/:tag", c.GetAnimalByTag)
	c.Group.GET("/animals/:id", c.GetAnimal)
	c.Group.PUT("/animals/:id", c.UpdateAnimal)
	c.Group.DELETE("/animals/:id", c.DeleteAnimal)
	c.Group.GET("/animals/:id/health", c.GetAnimalHealthHistory)
	c.Group.GET("/animals/:id/attendance", c.GetAnimalAttendanceHistory)
}

// AnimalRequest carries animal registration and update fields.
type AnimalRequest struct {
	TagID           string  `json:"tag_id"`
	Name            string  `json:"name"`
	Species         string  `json:"species"`
	Breed           string  `json:"breed"`
	AgeMonths       int     `json:"age_months"`
	Gender          string  `json:"gender"`
	WeightKG        float64 `json:"weight_kg"`
	MuzzlePrintHash string  `json:"muzzle_print_hash"`
	Notes           string  `json:"notes"`
	ImagePath       string  `json:"image_path"`
}

// GetAnimals lists registered animals with filtering and pagination.
func (c *Controller) GetAnimals(ctx echo.Context) error {
	limit, offset := parsePagination(ctx, 50, 500)
	query := datastore.AnimalQuery{
		Species:      ctx.QueryParam("species"),
		HealthStatus: ctx.QueryParam("health_status"),
		Search:       ctx.QueryParam("search"),
		Limit:        limit,
		Offset:       offset,
	}

	animals, total, err := c.DS.ListAnimals(query)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list animals", 0)
	}

	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Data:   animals,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateAnimal registers a new animal.
func (c *Controller) CreateAnimal(ctx echo.Context) error {
	var req AnimalRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if err := validateAnimalRequest(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid animal", 0)
	}

	animal := animalFromRequest(&req)
	if err := c.DS.CreateAnimal(animal); err != nil {
		return c.HandleError(ctx, err, "Failed to create animal", 0)
	}
	c.invalidateRegistry()

	return ctx.JSON(http.StatusCreated, animal)
}

// GetAnimal returns one animal by ID.
func (c *Controller) GetAnimal(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animal ID", http.StatusBadRequest)
	}
	animal, err := c.DS.GetAnimal(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}
	return ctx.JSON(http.StatusOK, animal)
}

// GetAnimalByTag returns one animal by its ear tag identifier.
func (c *Controller) GetAnimalByTag(ctx echo.Context) error {
	tag := strings.TrimSpace(ctx.Param("tag"))
	animal, err := c.DS.GetAnimalByTag(tag)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}
	return ctx.JSON(http.StatusOK, animal)
}

// UpdateAnimal replaces the mutable fields of an animal.
func (c *Controller) UpdateAnimal(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animal ID", http.StatusBadRequest)
	}
	var req AnimalRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if err := validateAnimalRequest(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid animal", 0)
	}

	animal, err := c.DS.GetAnimal(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}

	animal.TagID = req.TagID
	animal.Name = req.Name
	animal.Species = req.Species
	animal.Breed = req.Breed
	animal.AgeMonths = req.AgeMonths
	animal.Gender = req.Gender
	animal.WeightKG = req.WeightKG
	animal.MuzzlePrintHash = req.MuzzlePrintHash
	animal.Notes = req.Notes
	animal.ImagePath = req.ImagePath

	if err := c.DS.UpdateAnimal(&animal); err != nil {
		return c.HandleError(ctx, err, "Failed to update animal", 0)
	}
	c.invalidateRegistry()

	return ctx.JSON(http.StatusOK, animal)
}

// DeleteAnimal removes an animal from the registry.
func (c *Controller) DeleteAnimal(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animal ID", http.StatusBadRequest)
	}
	if err := c.DS.DeleteAnimal(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete animal", 0)
	}
	c.invalidateRegistry()

	return ctx.NoContent(http.StatusNoContent)
}

// GetAnimalHealthHistory returns an animal's health records, newest first.
func (c *Controller) GetAnimalHealthHistory(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animal ID", http.StatusBadRequest)
	}
	if _, err := c.DS.GetAnimal(id); err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}

	limit := queryInt(ctx, "limit", 30)
	records, err := c.DS.GetHealthHistory(id, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get health history", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"animal_id": id,
		"records":   records,
		"count":     len(records),
	})
}

// GetAnimalAttendanceHistory returns an animal's attendance records over a
// trailing window of days.
func (c *Controller) GetAnimalAttendanceHistory(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animal ID", http.StatusBadRequest)
	}
	if _, err := c.DS.GetAnimal(id); err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}

	days := queryInt(ctx, "days", 30)
	records, err := c.DS.GetAttendanceHistory(id, days)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get attendance history", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"animal_id": id,
		"days":      days,
		"records":   records,
		"count":     len(records),
	})
}

func validateAnimalRequest(req *AnimalRequest) error {
	req.TagID = strings.TrimSpace(req.TagID)
	if req.TagID == "" {
		return errors.Newf("tag_id is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Species == "" {
		req.Species = datastore.SpeciesCattle
	}
	if !slices.Contains(datastore.KnownSpecies, req.Species) {
		return errors.Newf("unknown species: %s", req.Species).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func animalFromRequest(req *AnimalRequest) *datastore.Animal {
	return &datastore.Animal{
		TagID:           req.TagID,
		Name:            req.Name,
		Species:         req.Species,
		Breed:           req.Breed,
		AgeMonths:       req.AgeMonths,
		Gender:          req.Gender,
		WeightKG:        req.WeightKG,
		MuzzlePrintHash: req.MuzzlePrintHash,
		Notes:           req.Notes,
		ImagePath:       req.ImagePath,
	}
}

// invalidateRegistry drops the cached identification registry after any
// animal mutation so new tags and prints match immediately.
func (c *Controller) invalidateRegistry() {
	if c.Pipeline.Registry != nil {
		c.Pipeline.Registry.Invalidate()
	}
}
