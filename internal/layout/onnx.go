package layout

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"pdf-translator/internal/geometry"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	modelInputSize = 1024
	maxDetections  = 300
)

// classLabels is the DocLayout-YOLO class order. Indexes are the class ids
// emitted by the model.
var classLabels = []string{
	"title",
	"plain text",
	"abandon",
	"figure",
	"figure_caption",
	"table",
	"table_caption",
	"table_footnote",
	"isolate_formula",
	"formula_caption",
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXDetector runs a DocLayout-YOLO model through onnxruntime.
type ONNXDetector struct {
	session *ort.DynamicAdvancedSession
	prep    *preprocessor
	mu      sync.Mutex
}

// NewONNXDetector loads the layout model. libraryPath optionally points at
// the onnxruntime shared library; empty uses the system default.
func NewONNXDetector(modelPath, libraryPath string) (*ONNXDetector, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, types.NewProcessingError(types.StageAnalysis, -1, "failed to initialize onnxruntime", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return nil, types.NewProcessingError(types.StageAnalysis, -1,
			fmt.Sprintf("failed to load layout model from %s", modelPath), err)
	}

	logger.Info("layout model loaded", logger.String("model", modelPath))
	return &ONNXDetector{
		session: session,
		prep:    newPreprocessor(modelInputSize),
	}, nil
}

// Detect runs one inference pass and decodes detections back into source
// image pixel-space. The session is not reentrant, so calls serialize.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fitted, box := d.prep.fit(img)
	data, shape := d.prep.tensor(fitted)

	input, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, maxDetections, 6))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	d.mu.Lock()
	err = d.session.Run([]ort.Value{input}, []ort.Value{output})
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("layout inference failed: %w", err)
	}

	return d.decode(output.GetData(), box, img.Bounds()), nil
}

// decode converts raw [300, 6] rows (x1, y1, x2, y2, score, class) from
// model-input space back to source pixels. Rows with score 0 are padding.
func (d *ONNXDetector) decode(raw []float32, box letterbox, bounds image.Rectangle) []Detection {
	detections := make([]Detection, 0, 32)
	maxX := float64(bounds.Dx())
	maxY := float64(bounds.Dy())

	for i := 0; i+6 <= len(raw); i += 6 {
		score := float64(raw[i+4])
		if score <= 0 {
			continue
		}
		classID := int(raw[i+5])
		if classID < 0 || classID >= len(classLabels) {
			continue
		}

		x1, y1 := box.unfit(float64(raw[i]), float64(raw[i+1]))
		x2, y2 := box.unfit(float64(raw[i+2]), float64(raw[i+3]))
		x1 = clamp(x1, 0, maxX)
		y1 = clamp(y1, 0, maxY)
		x2 = clamp(x2, 0, maxX)
		y2 = clamp(y2, 0, maxY)
		if x2-x1 < 1 || y2-y1 < 1 {
			continue
		}

		detections = append(detections, Detection{
			Rect:  geometry.PixelRect{X1: x1, Y1: y1, X2: x2, Y2: y2},
			Label: classLabels[classID],
			Score: score,
		})
	}

	return detections
}

// Close releases the model session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		err := d.session.Destroy()
		d.session = nil
		return err
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
