package vision

import (
	"os"
	"runtime"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
)

// cocoLivestock maps COCO detector class ids to livestock species labels.
// Farm dogs and cats are kept as "other" rather than discarded.
var cocoLivestock = map[int]string{
	16: datastore.SpeciesPoultry, // bird
	17: datastore.SpeciesOther,   // cat
	18: datastore.SpeciesOther,   // dog
	19: datastore.SpeciesHorse,
	20: datastore.SpeciesSheep,
	21: datastore.SpeciesCattle, // cow
}

// ModelBackend runs detection through a TensorFlow Lite detector with an
// SSD postprocess head (boxes, classes, scores, count output tensors).
// Tag reading, pattern matching and health scoring have no model of their
// own; they use the same deterministic synthesis as the fallback backend,
// grounded on pixel statistics where available.
type ModelBackend struct {
	settings    *conf.Settings
	interpreter *tflite.Interpreter
	inputWidth  int
	inputHeight int
}

// NewModelBackend loads the configured detector model. Any load failure is
// returned to the caller, which downgrades to the fallback backend.
func NewModelBackend(settings *conf.Settings) (*ModelBackend, error) {
	start := time.Now()

	modelData, err := os.ReadFile(settings.Vision.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryModelLoad).
			Context("model_path", settings.Vision.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("vision").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.Vision.ModelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := settings.Vision.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, userData any) {
		logger.Error("tflite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create interpreter").
			Component("vision").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed").
			Component("vision").
			Category(errors.CategoryModelInit).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	backend := &ModelBackend{
		settings:    settings,
		interpreter: interpreter,
		inputHeight: input.Dim(1),
		inputWidth:  input.Dim(2),
	}

	// The model data is copied into the interpreter; let the loader's
	// buffer go immediately.
	runtime.GC()

	logger.Debug("detector model loaded",
		"input_width", backend.inputWidth,
		"input_height", backend.inputHeight,
		"load_time_ms", time.Since(start).Milliseconds())
	return backend, nil
}

func (m *ModelBackend) Mode() Mode { return ModeModelBacked }

func (m *ModelBackend) Detect(img *ImageData) ([]RawDetection, error) {
	input := m.interpreter.GetInputTensor(0)
	m.fillInputTensor(input, img)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed").
			Component("vision").
			Category(errors.CategoryDetection).
			Context("image_path", img.Path).
			Build()
	}

	// SSD postprocess output layout: boxes, classes, scores, count.
	boxes := m.interpreter.GetOutputTensor(0).Float32s()
	classes := m.interpreter.GetOutputTensor(1).Float32s()
	scores := m.interpreter.GetOutputTensor(2).Float32s()
	count := int(m.interpreter.GetOutputTensor(3).Float32s()[0])

	detections := make([]RawDetection, 0, count)
	for i := 0; i < count && i < len(scores); i++ {
		species, ok := cocoLivestock[int(classes[i])]
		if !ok {
			continue
		}
		// Boxes arrive as (ymin, xmin, ymax, xmax) in normalized coordinates.
		detections = append(detections, RawDetection{
			Box: Region{
				X1: round4(clamp01(float64(boxes[i*4+1]))),
				Y1: round4(clamp01(float64(boxes[i*4]))),
				X2: round4(clamp01(float64(boxes[i*4+3]))),
				Y2: round4(clamp01(float64(boxes[i*4+2]))),
			},
			Species:    species,
			Confidence: round4(float64(scores[i])),
		})
	}
	return detections, nil
}

// fillInputTensor resizes the image to the model input with nearest
// neighbor sampling and writes normalized RGB floats.
func (m *ModelBackend) fillInputTensor(tensor *tflite.Tensor, img *ImageData) {
	data := tensor.Float32s()
	bounds := img.pixels.Bounds()

	for y := 0; y < m.inputHeight; y++ {
		srcY := bounds.Min.Y + y*bounds.Dy()/m.inputHeight
		for x := 0; x < m.inputWidth; x++ {
			srcX := bounds.Min.X + x*bounds.Dx()/m.inputWidth
			r, g, b, _ := img.pixels.At(srcX, srcY).RGBA()
			offset := (y*m.inputWidth + x) * 3
			if offset+2 >= len(data) {
				return
			}
			data[offset] = float32(r) / 65535.0
			data[offset+1] = float32(g) / 65535.0
			data[offset+2] = float32(b) / 65535.0
		}
	}
}

func (m *ModelBackend) ReadTag(img *ImageData, region *Region) (TagReading, error) {
	return synthTagReading(img, region), nil
}

func (m *ModelBackend) MatchPattern(img *ImageData, region *Region) (PatternMatch, error) {
	return synthPatternMatch(img), nil
}

func (m *ModelBackend) ScoreHealth(img *ImageData, region *Region) (HealthScores, error) {
	return synthHealthScores(img), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
