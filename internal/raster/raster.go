// Package raster renders PDF pages to images and inspects source documents.
// Rendering goes through MuPDF (go-fitz); page geometry comes from pdfcpu so
// point-space dimensions match what reconstruction uses later.
package raster

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const jpegQuality = 90

// PageImage describes one rendered page: the raster file plus the geometry
// needed to convert between pixel-space and point-space.
type PageImage struct {
	PageNumber int    // 0-based
	ImagePath  string // JPEG on disk
	WidthPx    int
	HeightPx   int
	WidthPts   float64
	HeightPts  float64
	Scale      float64 // pixels per point
}

// Rasterizer renders PDF pages at a fixed DPI.
type Rasterizer struct {
	dpi int
}

// NewRasterizer creates a Rasterizer rendering at the given DPI.
func NewRasterizer(dpi int) *Rasterizer {
	return &Rasterizer{dpi: dpi}
}

// RenderPages renders every page of the PDF into outDir as page_N.jpg and
// returns the page images in document order. The context is checked between
// pages so cancellation stops rendering promptly.
func (r *Rasterizer) RenderPages(ctx context.Context, pdfPath, outDir string) ([]PageImage, error) {
	dims, err := api.PageDimsFile(pdfPath)
	if err != nil {
		return nil, types.NewProcessingError(types.StageConversion, -1, "failed to read page dimensions", err)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, types.NewProcessingError(types.StageConversion, -1, "failed to open PDF for rendering", err)
	}
	defer doc.Close()

	if doc.NumPage() != len(dims) {
		return nil, types.NewProcessingError(types.StageConversion, -1,
			fmt.Sprintf("page count mismatch: renderer sees %d, reader sees %d", doc.NumPage(), len(dims)), nil)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, types.NewProcessingError(types.StageConversion, -1, "failed to create raster directory", err)
	}

	pages := make([]PageImage, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(n, float64(r.dpi))
		if err != nil {
			return nil, types.NewProcessingError(types.StageConversion, n, "failed to render page", err)
		}

		imgPath := filepath.Join(outDir, fmt.Sprintf("page_%d.jpg", n))
		f, err := os.Create(imgPath)
		if err != nil {
			return nil, types.NewProcessingError(types.StageConversion, n, "failed to create page image", err)
		}
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			f.Close()
			return nil, types.NewProcessingError(types.StageConversion, n, "failed to encode page image", err)
		}
		if err := f.Close(); err != nil {
			return nil, types.NewProcessingError(types.StageConversion, n, "failed to write page image", err)
		}

		bounds := img.Bounds()
		page := PageImage{
			PageNumber: n,
			ImagePath:  imgPath,
			WidthPx:    bounds.Dx(),
			HeightPx:   bounds.Dy(),
			WidthPts:   dims[n].Width,
			HeightPts:  dims[n].Height,
		}
		page.Scale = float64(page.WidthPx) / page.WidthPts

		logger.Debug("rendered page",
			logger.Int("page", n),
			logger.Int("widthPx", page.WidthPx),
			logger.Float64("scale", page.Scale))

		pages = append(pages, page)
	}

	return pages, nil
}
