// Package ocr extracts text from detected page regions through an external
// OCR engine.
package ocr

import (
	"context"
	"image"
	"strings"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
)

// CropMargin expands region crops by this fraction of the region size on
// each side, so OCR is not starved of glyph edges by a tight detection box.
const CropMargin = 0.015

// Engine is the external OCR contract: region image in, recognized text out.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// subImager is satisfied by the stdlib raster image types.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Extractor crops text regions from page images and runs them through OCR.
type Extractor struct {
	engine Engine
}

// NewExtractor creates an Extractor over the given engine.
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{engine: engine}
}

// Extract returns the recognized text of a text region. Callers must not
// invoke it for non-text regions; reconstruction copies those pixels
// directly. Engine failures propagate so the caller can degrade the region
// to empty text without failing the page.
func (e *Extractor) Extract(ctx context.Context, pageImg image.Image, region layout.Region) (string, error) {
	crop := e.crop(pageImg, region)

	text, err := e.engine.Recognize(ctx, crop)
	if err != nil {
		return "", err
	}

	cleaned := CleanText(text)
	logger.Debug("extracted region text",
		logger.Int("region", region.ID),
		logger.Int("chars", len(cleaned)))
	return cleaned, nil
}

// crop cuts the region out of the page image with the margin applied,
// clamped to image bounds.
func (e *Extractor) crop(pageImg image.Image, region layout.Region) image.Image {
	r := region.Pixels
	marginX := (r.X2 - r.X1) * CropMargin
	marginY := (r.Y2 - r.Y1) * CropMargin

	rect := image.Rect(
		int(r.X1-marginX), int(r.Y1-marginY),
		int(r.X2+marginX), int(r.Y2+marginY),
	).Intersect(pageImg.Bounds())

	if si, ok := pageImg.(subImager); ok {
		return si.SubImage(rect)
	}

	// Fallback copy for image types without SubImage.
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			dst.Set(x, y, pageImg.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return dst
}

// CleanText normalizes OCR output: form feeds, line breaks and runs of
// whitespace collapse to single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
