// Package layout detects document regions on rendered page images and maps
// them into PDF point-space.
package layout

import (
	"context"
	"fmt"
	"image"

	"pdf-translator/internal/geometry"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// RegionType is the semantic type of a detected region.
type RegionType string

const (
	RegionText    RegionType = "text"
	RegionFigure  RegionType = "figure"
	RegionTable   RegionType = "table"
	RegionFormula RegionType = "formula"
)

// IsTranslatable reports whether regions of this type carry text that goes
// through OCR and translation.
func (t RegionType) IsTranslatable() bool {
	return t == RegionText
}

// Region is a detected rectangular area on a page. Position is in PDF
// point-space; Pixels keeps the raster-space rect for OCR cropping and
// browser overlay convenience.
type Region struct {
	ID         int                `json:"id"`
	Type       RegionType         `json:"type"`
	Position   geometry.Box       `json:"position"`
	Pixels     geometry.PixelRect `json:"pixels"`
	Confidence float64            `json:"confidence"`
}

// Detection is a raw detector result in pixel-space.
type Detection struct {
	Rect  geometry.PixelRect
	Label string
	Score float64
}

// Detector is the external layout model contract: page image in, raw
// detections out.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// labelTypes maps detector labels to region types. Labels carrying running
// text (captions, footnotes, headers, lists) all translate as text; the
// "abandon" label marks page furniture that is dropped entirely.
var labelTypes = map[string]RegionType{
	"plain text":      RegionText,
	"title":           RegionText,
	"list":            RegionText,
	"section-header":  RegionText,
	"figure_caption":  RegionText,
	"table_caption":   RegionText,
	"table_footnote":  RegionText,
	"formula_caption": RegionText,
	"figure":          RegionFigure,
	"table":           RegionTable,
	"isolate_formula": RegionFormula,
}

// PageGeometry carries the raster-to-point mapping for one page.
type PageGeometry struct {
	Scale     float64 // pixels per point
	WidthPts  float64
	HeightPts float64
}

// Analyzer filters and converts raw detections into regions.
type Analyzer struct {
	detector   Detector
	confidence float64
	retry      types.RetryPolicy
}

// NewAnalyzer creates an Analyzer with the given confidence threshold.
// The threshold must be in (0, 1); the configured default 0.45 balances
// precision and recall for document layouts.
func NewAnalyzer(detector Detector, confidence float64) (*Analyzer, error) {
	if confidence <= 0 || confidence >= 1 {
		return nil, types.NewValidationError(
			fmt.Sprintf("confidence threshold %.2f out of range (0, 1)", confidence), nil)
	}
	return &Analyzer{
		detector:   detector,
		confidence: confidence,
		retry:      types.DefaultRetryPolicy(),
	}, nil
}

// Analyze runs the detector on a page image and returns regions in detection
// order, ids assigned sequentially starting at 1. Detections below the
// confidence threshold and "abandon" labels are dropped. Detector failures
// are retried with backoff; exhaustion returns a processing error that fails
// the page's task.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image, pageNumber int, geom PageGeometry) ([]Region, error) {
	var detections []Detection
	err := types.Retry(ctx, a.retry, func() error {
		var detectErr error
		detections, detectErr = a.detector.Detect(ctx, img)
		return detectErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewProcessingError(types.StageAnalysis, pageNumber, "layout detection failed", err)
	}

	regions := make([]Region, 0, len(detections))
	nextID := 1
	dropped := 0
	for _, d := range detections {
		if d.Score < a.confidence {
			dropped++
			continue
		}
		regionType, ok := labelTypes[d.Label]
		if !ok {
			// Unknown labels and "abandon" furniture carry nothing to keep.
			dropped++
			continue
		}

		box, err := geometry.ToPoints(d.Rect, geom.Scale, geom.HeightPts)
		if err != nil {
			logger.Warn("skipping degenerate detection",
				logger.Int("page", pageNumber),
				logger.String("label", d.Label),
				logger.Err(err))
			dropped++
			continue
		}
		box = geometry.ClampToPage(box, geom.WidthPts, geom.HeightPts)

		regions = append(regions, Region{
			ID:         nextID,
			Type:       regionType,
			Position:   box,
			Pixels:     d.Rect,
			Confidence: d.Score,
		})
		nextID++
	}

	logger.Debug("layout analysis complete",
		logger.Int("page", pageNumber),
		logger.Int("regions", len(regions)),
		logger.Int("dropped", dropped))

	return regions, nil
}
