package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/frame"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// FileAnalysis runs one image through the full pipeline and prints the
// frame result as JSON. When animalID is non-nil, unresolved detections
// attach their assessments to that animal.
func FileAnalysis(ctx context.Context, settings *conf.Settings, imagePath string, animalID *uint) error {
	rt, err := buildRuntime(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	img, err := vision.LoadImage(imagePath)
	if err != nil {
		return err
	}

	result, err := rt.Orchestrator.ProcessFrame(ctx, frame.Request{
		Image:    img,
		Source:   frame.SourceUpload,
		AnimalID: animalID,
		Options:  identify.DefaultOptions(settings),
	})
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
