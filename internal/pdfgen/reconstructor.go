// Package pdfgen reconstructs translated PDF pages. Each page starts from
// its cached raster (preserving figures, tables and everything else
// verbatim), then every text region is covered with a white box and redrawn
// with translated text fitted to the original bounds.
package pdfgen

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/fonts"
	"pdf-translator/internal/geometry"
	"pdf-translator/internal/logger"
	pdftypes "pdf-translator/internal/types"
)

// RegionSpec is one region to draw on a reconstructed page.
type RegionSpec struct {
	ID           int
	Box          geometry.Box // point-space
	Text         string       // translated text
	Fallback     string       // original text, drawn if the translation fails to render
	Translatable bool
	FontSize     float64 // 0 means fit automatically
}

// PageSpec describes one page to reconstruct.
type PageSpec struct {
	PageNumber int // 0-based
	WidthPts   float64
	HeightPts  float64
	RasterPath string
	Font       fonts.Handle
	Regions    []RegionSpec
}

// PageFile pairs a rendered page PDF with its position in the document.
type PageFile struct {
	PageNumber int
	Path       string
}

// Reconstructor renders translated pages and assembles the final document.
type Reconstructor struct {
	conf *model.Configuration
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{conf: model.NewDefaultConfiguration()}
}

// RenderPage writes a single-page PDF to outPath: the page raster imported
// at the page's point dimensions, overlaid with translated text per region.
// A region that fails to render degrades to its original text; a region
// failing even that is left as raster and logged into the returned notes,
// never an error. The notes feed the task's progress details.
func (r *Reconstructor) RenderPage(ctx context.Context, page PageSpec, outPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imp, err := api.Import(fmt.Sprintf("dim:%d %d, pos:c, sc:1.0 rel", int(page.WidthPts), int(page.HeightPts)), types.POINTS)
	if err != nil {
		return nil, pdftypes.NewReconstructionError(page.PageNumber, "invalid page import parameters", err)
	}
	if err := api.ImportImagesFile([]string{page.RasterPath}, outPath, imp, r.conf); err != nil {
		return nil, pdftypes.NewReconstructionError(page.PageNumber, "failed to import page raster", err)
	}

	var notes []string
	for _, region := range page.Regions {
		if !region.Translatable {
			continue
		}
		if strings.TrimSpace(region.Text) == "" {
			// Nothing to draw; the raster already shows the original.
			continue
		}

		if err := r.drawRegion(outPath, page, region, region.Text); err != nil {
			logger.Warn("region render failed, degrading to original text",
				logger.Int("page", page.PageNumber),
				logger.Int("region", region.ID),
				logger.Err(err))

			if strings.TrimSpace(region.Fallback) == "" {
				notes = append(notes, fmt.Sprintf("page %d region %d: render failed, region left as raster", page.PageNumber, region.ID))
				continue
			}
			if err := r.drawRegion(outPath, page, region, region.Fallback); err != nil {
				logger.Error("region render failed for original text too", err,
					logger.Int("page", page.PageNumber),
					logger.Int("region", region.ID))
				notes = append(notes, fmt.Sprintf("page %d region %d: render failed, region left as raster", page.PageNumber, region.ID))
				continue
			}
			notes = append(notes, fmt.Sprintf("page %d region %d: rendered original text", page.PageNumber, region.ID))
		}
	}

	return notes, nil
}

// drawRegion covers the region with a white box and draws the text fitted
// into it. Watermarks are built through description strings so pdfcpu fills
// in its internal defaults; a hand-assembled Watermark struct misses them.
func (r *Reconstructor) drawRegion(pdfPath string, page PageSpec, region RegionSpec, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	fit := r.fitRegion(text, region)
	if fit.Overflow {
		logger.Debug("text overflows region at minimum font size",
			logger.Int("page", page.PageNumber),
			logger.Int("region", region.ID))
	}

	desc := fmt.Sprintf("fontname:%s, points:%d, scalefactor:1 abs, position:tl, offset:%.2f %.2f, fillcolor:#000000, rotation:0, opacity:1",
		page.Font.Name, int(fit.FontSize), region.Box.X, -(page.HeightPts - region.Box.Y - region.Box.Height))
	wm, err := api.TextWatermark(strings.Join(fit.Lines, "\n"), desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("invalid region text stamp: %w", err)
	}

	if err := r.coverRegion(pdfPath, page, region.Box); err != nil {
		return err
	}
	if err := api.AddWatermarksFile(pdfPath, "", []string{"1"}, wm, r.conf); err != nil {
		return fmt.Errorf("failed to draw region text: %w", err)
	}
	return nil
}

// fitRegion fits the text, honoring a user-pinned font size from an edit
// when one is present.
func (r *Reconstructor) fitRegion(text string, region RegionSpec) Fit {
	if region.FontSize > 0 {
		return Fit{
			FontSize: region.FontSize,
			Lines:    wrap(strings.TrimSpace(text), region.FontSize, region.Box.Width),
		}
	}
	return FitText(text, region.Box.Width, region.Box.Height)
}

// coverRegion stamps an opaque white rectangle over the region so the
// original rasterized text underneath cannot bleed through. The rectangle
// is a generated image sized to the box: an image stamp at absolute scale
// renders pixel dimensions as points, which gives exact coverage.
func (r *Reconstructor) coverRegion(pdfPath string, page PageSpec, box geometry.Box) error {
	w := int(math.Ceil(box.Width))
	h := int(math.Ceil(box.Height))
	if w < 1 || h < 1 {
		return fmt.Errorf("degenerate region box %dx%d", w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	tmp, err := os.CreateTemp(filepath.Dir(pdfPath), "cover-*.png")
	if err != nil {
		return fmt.Errorf("failed to create cover image: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cover image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cover image: %w", err)
	}

	desc := fmt.Sprintf("scalefactor:1 abs, position:tl, offset:%.2f %.2f, rotation:0, opacity:1",
		box.X, -(page.HeightPts-box.Y-box.Height))
	wm, err := api.ImageWatermark(tmpName, desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("invalid cover stamp: %w", err)
	}
	if err := api.AddWatermarksFile(pdfPath, "", []string{"1"}, wm, r.conf); err != nil {
		return fmt.Errorf("failed to cover region: %w", err)
	}
	return nil
}

// Assemble merges rendered page PDFs into outPath, reordered by page number
// regardless of the completion order pages arrived in.
func (r *Reconstructor) Assemble(ctx context.Context, pages []PageFile, outPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(pages) == 0 {
		return pdftypes.NewReconstructionError(-1, "no pages to assemble", nil)
	}

	ordered := make([]PageFile, len(pages))
	copy(ordered, pages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageNumber < ordered[j].PageNumber })

	paths := make([]string, len(ordered))
	for i, p := range ordered {
		paths[i] = p.Path
	}

	if err := api.MergeCreateFile(paths, outPath, false, r.conf); err != nil {
		return pdftypes.NewReconstructionError(-1, "failed to merge pages", err)
	}

	logger.Info("assembled translated PDF",
		logger.Int("pages", len(paths)),
		logger.String("output", outPath))
	return nil
}
