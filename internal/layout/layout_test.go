package layout

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/geometry"
	"pdf-translator/internal/types"
)

type stubDetector struct {
	detections []Detection
	err        error
	failures   int // fail this many calls before succeeding
	calls      int
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("detector unavailable")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.detections, nil
}

func testGeometry() PageGeometry {
	return PageGeometry{Scale: 2480.0 / 595.28, WidthPts: 595.28, HeightPts: 841.89}
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2480, 3508))
}

func fastRetry(a *Analyzer) {
	a.retry = types.RetryPolicy{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}
}

func TestNewAnalyzerValidatesConfidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		wantErr    bool
	}{
		{"default threshold", 0.45, false},
		{"zero rejected", 0, true},
		{"one rejected", 1.0, true},
		{"negative rejected", -0.2, true},
		{"just inside range", 0.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnalyzer(&stubDetector{}, tt.confidence)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalyzeFiltersAndConverts(t *testing.T) {
	detector := &stubDetector{
		detections: []Detection{
			{Rect: geometry.PixelRect{X1: 100, Y1: 100, X2: 1000, Y2: 400}, Label: "plain text", Score: 0.92},
			{Rect: geometry.PixelRect{X1: 100, Y1: 500, X2: 1000, Y2: 900}, Label: "figure", Score: 0.88},
			{Rect: geometry.PixelRect{X1: 100, Y1: 1000, X2: 1000, Y2: 1100}, Label: "plain text", Score: 0.30}, // below threshold
			{Rect: geometry.PixelRect{X1: 100, Y1: 1200, X2: 1000, Y2: 1300}, Label: "abandon", Score: 0.95},    // page furniture
			{Rect: geometry.PixelRect{X1: 100, Y1: 1400, X2: 1000, Y2: 1500}, Label: "table_caption", Score: 0.77},
		},
	}

	a, err := NewAnalyzer(detector, 0.45)
	require.NoError(t, err)

	regions, err := a.Analyze(context.Background(), testImage(), 0, testGeometry())
	require.NoError(t, err)

	require.Len(t, regions, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{regions[0].ID, regions[1].ID, regions[2].ID})
	assert.Equal(t, RegionText, regions[0].Type)
	assert.Equal(t, RegionFigure, regions[1].Type)
	assert.Equal(t, RegionText, regions[2].Type)
	assert.True(t, regions[0].Type.IsTranslatable())
	assert.False(t, regions[1].Type.IsTranslatable())
}

func TestAnalyzeConvertsToPointSpace(t *testing.T) {
	geom := testGeometry()
	detector := &stubDetector{
		detections: []Detection{
			{Rect: geometry.PixelRect{X1: 0, Y1: 0, X2: 2480, Y2: 200}, Label: "title", Score: 0.9},
		},
	}

	a, err := NewAnalyzer(detector, 0.45)
	require.NoError(t, err)

	regions, err := a.Analyze(context.Background(), testImage(), 0, geom)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	box := regions[0].Position
	// Full-width band at the raster top maps to the top of point-space.
	assert.InDelta(t, 0, box.X, 1e-3)
	assert.InDelta(t, geom.WidthPts, box.Width, 1e-3)
	assert.InDelta(t, geom.HeightPts-box.Height, box.Y, 1e-3)

	// Region invariant: box fits inside page bounds.
	assert.GreaterOrEqual(t, box.X, 0.0)
	assert.GreaterOrEqual(t, box.Y, 0.0)
	assert.LessOrEqual(t, box.X+box.Width, geom.WidthPts+1e-3)
	assert.LessOrEqual(t, box.Y+box.Height, geom.HeightPts+1e-3)
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	detector := &stubDetector{
		failures: 2,
		detections: []Detection{
			{Rect: geometry.PixelRect{X1: 10, Y1: 10, X2: 100, Y2: 100}, Label: "plain text", Score: 0.9},
		},
	}

	a, err := NewAnalyzer(detector, 0.45)
	require.NoError(t, err)
	fastRetry(a)

	regions, err := a.Analyze(context.Background(), testImage(), 2, testGeometry())
	require.NoError(t, err)
	assert.Len(t, regions, 1)
	assert.Equal(t, 3, detector.calls)
}

func TestAnalyzeFailsAfterRetryExhaustion(t *testing.T) {
	detector := &stubDetector{failures: 10}

	a, err := NewAnalyzer(detector, 0.45)
	require.NoError(t, err)
	fastRetry(a)

	_, err = a.Analyze(context.Background(), testImage(), 5, testGeometry())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProcessing))

	var te *types.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.StageAnalysis, te.Stage)
	assert.Equal(t, 5, te.Page)
	assert.Equal(t, 3, detector.calls)
}

func TestAnalyzeEmptyPage(t *testing.T) {
	a, err := NewAnalyzer(&stubDetector{}, 0.45)
	require.NoError(t, err)

	regions, err := a.Analyze(context.Background(), testImage(), 0, testGeometry())
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestLetterboxRoundTrip(t *testing.T) {
	prep := newPreprocessor(modelInputSize)
	img := image.NewRGBA(image.Rect(0, 0, 2480, 3508))

	fitted, box := prep.fit(img)
	bounds := fitted.Bounds()
	assert.Equal(t, modelInputSize, bounds.Dx())
	assert.Equal(t, modelInputSize, bounds.Dy())

	// The tall page is height-bound: scale maps 3508px onto 1024px.
	assert.InDelta(t, 1024.0/3508.0, box.scale, 1e-9)

	// A point placed through the letterbox maps back to where it started.
	srcX, srcY := 1240.0, 1754.0
	modelX := srcX*box.scale + float64(box.offsetX)
	modelY := srcY*box.scale + float64(box.offsetY)
	backX, backY := box.unfit(modelX, modelY)
	assert.InDelta(t, srcX, backX, 1e-6)
	assert.InDelta(t, srcY, backY, 1e-6)
}

func TestTensorShape(t *testing.T) {
	prep := newPreprocessor(8)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	data, shape := prep.tensor(img)
	assert.Equal(t, []int64{1, 3, 8, 8}, shape)
	assert.Len(t, data, 3*8*8)

	// Black pixels normalize to (0 - mean) / std per channel.
	assert.InDelta(t, float64(-prep.mean[0]/prep.std[0]), float64(data[0]), 1e-5)
	assert.InDelta(t, float64(-prep.mean[1]/prep.std[1]), float64(data[64]), 1e-5)
	assert.InDelta(t, float64(-prep.mean[2]/prep.std[2]), float64(data[128]), 1e-5)
}
