package task

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/raster"
	"pdf-translator/internal/translate"
)

// Rasterizer renders a PDF's pages to images.
type Rasterizer interface {
	RenderPages(ctx context.Context, pdfPath, outDir string) ([]raster.PageImage, error)
}

// Analyzer detects layout regions on a page image.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, pageNumber int, geom layout.PageGeometry) ([]layout.Region, error)
}

// Extractor recognizes the text of a region.
type Extractor interface {
	Extract(ctx context.Context, pageImg image.Image, region layout.Region) (string, error)
}

// Translator translates a set of text entries in batches.
type Translator interface {
	Translate(ctx context.Context, entries []translate.Entry, targetLanguage string) ([]translate.Result, error)
}

// Reconstructor renders translated pages and assembles the final PDF.
type Reconstructor interface {
	RenderPage(ctx context.Context, page pdfgen.PageSpec, outPath string) ([]string, error)
	Assemble(ctx context.Context, pages []pdfgen.PageFile, outPath string) error
}

// pagePrep is one page's output from analysis and extraction, ready for
// cross-page translation batching.
type pagePrep struct {
	image   raster.PageImage
	regions []layout.Region
	texts   map[int]string // region id -> extracted text, translatable regions only
	notes   []string
}

// preparePage runs one page through analysis and extraction. OCR failures
// degrade the region to empty text with a note instead of failing the page;
// analysis failures fail the page and with it the task.
func (o *Orchestrator) preparePage(ctx context.Context, pageImg raster.PageImage, rec *PageRecord) (*pagePrep, error) {
	img, err := loadImage(pageImg.ImagePath)
	if err != nil {
		rec.Advance(PageFailed)
		return nil, err
	}

	regions, err := o.analyzer.Analyze(ctx, img, pageImg.PageNumber, layout.PageGeometry{
		Scale:     pageImg.Scale,
		WidthPts:  pageImg.WidthPts,
		HeightPts: pageImg.HeightPts,
	})
	if err != nil {
		rec.Advance(PageFailed)
		return nil, err
	}
	if err := rec.Advance(PageAnalyzed); err != nil {
		return nil, err
	}

	prep := &pagePrep{
		image:   pageImg,
		regions: regions,
		texts:   make(map[int]string),
	}

	for _, region := range regions {
		if !region.Type.IsTranslatable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			rec.Advance(PageFailed)
			return nil, err
		}

		text, err := o.extractor.Extract(ctx, img, region)
		if err != nil {
			logger.Warn("region OCR failed, keeping region as raster",
				logger.Int("page", pageImg.PageNumber),
				logger.Int("region", region.ID),
				logger.Err(err))
			prep.notes = append(prep.notes,
				fmt.Sprintf("page %d region %d: text extraction failed, region left untranslated", pageImg.PageNumber, region.ID))
			text = ""
		}
		prep.texts[region.ID] = text
	}

	if err := rec.Advance(PageExtracted); err != nil {
		return nil, err
	}
	return prep, nil
}

// pageTranslation builds the durable snapshot entry for one prepared page
// from the distributed translation results.
func (p *pagePrep) pageTranslation(translated map[int]translate.Result) PageTranslation {
	page := PageTranslation{
		PageNumber:   p.image.PageNumber,
		Translations: []TranslationText{},
	}
	for _, region := range p.regions {
		if !region.Type.IsTranslatable() {
			continue
		}
		text := TranslationText{
			ID:           region.ID,
			OriginalText: p.texts[region.ID],
		}
		if r, ok := translated[region.ID]; ok && !r.Failed {
			text.TranslatedText = r.Text
		}
		page.Translations = append(page.Translations, text)
	}
	return page
}

// pagePositions builds the durable region geometry for one prepared page.
func (p *pagePrep) pagePositions() PagePositions {
	positions := PagePositions{
		PageNumber: p.image.PageNumber,
		Dimensions: Dimensions{Width: p.image.WidthPts, Height: p.image.HeightPts},
		Regions:    []RegionPosition{},
	}
	for _, region := range p.regions {
		positions.Regions = append(positions.Regions, RegionPosition{
			ID:       region.ID,
			Type:     region.Type,
			Position: region.Position,
			Pixels:   region.Pixels,
		})
	}
	return positions
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}
