package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pdf-translator/internal/fonts"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/raster"
	"pdf-translator/internal/storage"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

// Orchestrator drives tasks through the pipeline. One orchestrator serves
// all tasks; per-task concurrency is bounded by the configured page
// concurrency, and translation API pressure is bounded globally inside the
// translator.
type Orchestrator struct {
	store         *Store
	blobs         storage.Store
	rasterizer    Rasterizer
	analyzer      Analyzer
	extractor     Extractor
	translator    Translator
	reconstructor Reconstructor
	fonts         *fonts.Resolver
	cfg           *types.Config
	workRoot      string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator wires the pipeline components together. workRoot is the
// scratch directory for per-task intermediate files.
func NewOrchestrator(store *Store, blobs storage.Store, rasterizer Rasterizer, analyzer Analyzer,
	extractor Extractor, translator Translator, reconstructor Reconstructor,
	resolver *fonts.Resolver, cfg *types.Config, workRoot string) *Orchestrator {
	return &Orchestrator{
		store:         store,
		blobs:         blobs,
		rasterizer:    rasterizer,
		analyzer:      analyzer,
		extractor:     extractor,
		translator:    translator,
		reconstructor: reconstructor,
		fonts:         resolver,
		cfg:           cfg,
		workRoot:      workRoot,
		cancels:       make(map[string]context.CancelFunc),
	}
}

// Create validates an upload, stores the original document and registers a
// pending task. Processing starts separately through Run.
func (o *Orchestrator) Create(pdfData []byte, filename, targetLanguage string) (*Task, error) {
	if err := raster.ValidateUpload(pdfData, o.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	if targetLanguage == "" {
		targetLanguage = o.cfg.TargetLanguage
	}

	id := uuid.NewString()
	if _, err := o.blobs.Put(storage.TaskKey(id, storage.BlobOriginalPDF), pdfData); err != nil {
		return nil, err
	}

	t := &Task{
		ID:             id,
		Status:         StatusPending,
		OriginalFile:   filename,
		TargetLanguage: targetLanguage,
		Model:          o.cfg.OpenAIModel,
		Progress:       Progress{Step: StepQueued},
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.SaveTask(t); err != nil {
		return nil, err
	}

	logger.Info("task created",
		logger.String("task", id),
		logger.String("file", filename),
		logger.String("language", targetLanguage))
	return t, nil
}

// Run processes a pending task to completion. It is the only writer of the
// task record while running; page workers report through return values and
// notes, never by touching the record themselves. Any error, including
// cancellation, lands the task in FAILED with a human-readable reason.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithCancel(ctx)
	o.registerCancel(taskID, cancel)
	defer o.releaseCancel(taskID)

	if _, err := o.store.Transition(taskID, StatusProcessing, func(t *Task) {
		t.Progress = Progress{Step: StepConverting}
	}); err != nil {
		return err
	}

	err := o.run(ctx, taskID)
	if err == nil {
		return nil
	}

	reason := failureReason(err)
	if _, ferr := o.store.Transition(taskID, StatusFailed, func(t *Task) {
		t.Error = reason
	}); ferr != nil {
		logger.Error("failed to record task failure", ferr, logger.String("task", taskID))
	}
	logger.Error("task failed", err, logger.String("task", taskID))
	return err
}

func (o *Orchestrator) run(ctx context.Context, taskID string) error {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(o.workRoot, "task-"+taskID+"-")
	if err != nil {
		return types.NewStorageError("failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	pdfPath, err := o.materializeOriginal(taskID, workDir)
	if err != nil {
		return err
	}

	var notes []string
	if hasText, err := raster.HasTextLayer(pdfPath); err == nil && hasText {
		notes = append(notes, "document has a native text layer; text is re-recognized from page rasters")
		o.updateProgress(taskID, func(t *Task) { t.HasTextLayer = true })
	}

	pages, err := o.rasterizer.RenderPages(ctx, pdfPath, filepath.Join(workDir, "raster"))
	if err != nil {
		return err
	}
	o.cacheRasters(taskID, pages)
	o.updateProgress(taskID, func(t *Task) {
		t.PageCount = len(pages)
		t.Progress = Progress{Step: StepAnalyzing, Details: notes}
	})

	records := make([]*PageRecord, len(pages))
	preps := make([]*pagePrep, len(pages))
	for i, p := range pages {
		records[i] = &PageRecord{PageNumber: p.PageNumber, State: PageCreated}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.PageConcurrency)
	for i := range pages {
		g.Go(func() error {
			prep, err := o.preparePage(gctx, pages[i], records[i])
			if err != nil {
				return err
			}
			preps[i] = prep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, prep := range preps {
		notes = append(notes, prep.notes...)
	}

	positions := &PositionData{Pages: []PagePositions{}}
	for _, prep := range preps {
		positions.Pages = append(positions.Pages, prep.pagePositions())
	}
	if err := o.store.SavePositionData(taskID, positions); err != nil {
		return err
	}

	o.updateProgress(taskID, func(t *Task) {
		t.Progress = Progress{Step: StepTranslating, Details: notes}
	})

	if err := o.store.InitTranslationData(taskID, task.TargetLanguage, task.Model); err != nil {
		return err
	}
	if err := o.translatePages(ctx, taskID, task.TargetLanguage, preps, records); err != nil {
		return err
	}

	o.updateProgress(taskID, func(t *Task) {
		t.Progress = Progress{Step: StepAssembling, Details: notes}
	})

	data, err := o.store.GetTranslationData(taskID)
	if err != nil {
		return err
	}
	renderNotes, err := o.reconstruct(ctx, taskID, workDir, positions, data, task.TargetLanguage, o.rasterPaths(pages), records)
	if err != nil {
		return err
	}
	notes = append(notes, renderNotes...)

	if _, err := o.store.Transition(taskID, StatusCompleted, func(t *Task) {
		t.TranslatedFile = storage.TaskKey(taskID, storage.BlobTranslatedPDF)
		t.Progress = Progress{Step: StepAssembling, Details: notes}
		t.Error = ""
	}); err != nil {
		return err
	}

	logger.Info("task completed", logger.String("task", taskID), logger.Int("pages", len(pages)))
	return nil
}

// translatePages batches every translatable region across all pages through
// the translator, then persists each page's snapshot atomically so a later
// failure never loses earlier pages.
func (o *Orchestrator) translatePages(ctx context.Context, taskID, targetLanguage string, preps []*pagePrep, records []*PageRecord) error {
	var entries []translate.Entry
	for _, prep := range preps {
		ids := make([]int, 0, len(prep.texts))
		for id := range prep.texts {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			entries = append(entries, translate.Entry{
				Page:   prep.image.PageNumber,
				Region: id,
				Text:   prep.texts[id],
			})
		}
	}

	results, err := o.translator.Translate(ctx, entries, targetLanguage)
	if err != nil {
		return err
	}

	byPage := make(map[int]map[int]translate.Result)
	for _, r := range results {
		if byPage[r.Page] == nil {
			byPage[r.Page] = make(map[int]translate.Result)
		}
		byPage[r.Page][r.Region] = r
	}

	for i, prep := range preps {
		page := prep.pageTranslation(byPage[prep.image.PageNumber])
		if err := o.store.SavePageTranslation(taskID, page); err != nil {
			return err
		}
		if err := records[i].Advance(PageTranslated); err != nil {
			return err
		}
	}
	return nil
}

// reconstruct renders every page over its cached raster and assembles the
// final document into the blob store.
func (o *Orchestrator) reconstruct(ctx context.Context, taskID, workDir string, positions *PositionData,
	data *TranslationData, targetLanguage string, rasterPaths map[int]string, records []*PageRecord) ([]string, error) {

	font := o.fonts.Resolve(targetLanguage)
	pageDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(pageDir, 0755); err != nil {
		return nil, types.NewStorageError("failed to create page directory", err)
	}

	var mu sync.Mutex
	var notes []string
	files := make([]pdfgen.PageFile, len(positions.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.PageConcurrency)
	for i := range positions.Pages {
		g.Go(func() error {
			pagePos := positions.Pages[i]
			spec := buildPageSpec(pagePos, data, font, rasterPaths[pagePos.PageNumber])
			outPath := filepath.Join(pageDir, fmt.Sprintf("page_%d.pdf", pagePos.PageNumber))

			pageNotes, err := o.reconstructor.RenderPage(gctx, spec, outPath)
			if err != nil {
				if records != nil {
					records[i].Advance(PageFailed)
				}
				return err
			}
			if records != nil {
				if err := records[i].Advance(PageReconstructed); err != nil {
					return err
				}
			}

			mu.Lock()
			notes = append(notes, pageNotes...)
			mu.Unlock()
			files[i] = pdfgen.PageFile{PageNumber: pagePos.PageNumber, Path: outPath}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outPath := filepath.Join(workDir, "translated.pdf")
	if err := o.reconstructor.Assemble(ctx, files, outPath); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, types.NewStorageError("failed to read assembled PDF", err)
	}
	if _, err := o.blobs.Put(storage.TaskKey(taskID, storage.BlobTranslatedPDF), result); err != nil {
		return nil, err
	}
	return notes, nil
}

// buildPageSpec merges a page's geometry with its translations into a render
// spec. Regions without a translation entry are left as raster.
func buildPageSpec(pagePos PagePositions, data *TranslationData, font fonts.Handle, rasterPath string) pdfgen.PageSpec {
	texts := make(map[int]TranslationText)
	if page := data.page(pagePos.PageNumber); page != nil {
		for _, t := range page.Translations {
			texts[t.ID] = t
		}
	}

	spec := pdfgen.PageSpec{
		PageNumber: pagePos.PageNumber,
		WidthPts:   pagePos.Dimensions.Width,
		HeightPts:  pagePos.Dimensions.Height,
		RasterPath: rasterPath,
		Font:       font,
	}
	for _, region := range pagePos.Regions {
		rs := pdfgen.RegionSpec{
			ID:           region.ID,
			Box:          region.Position,
			Translatable: region.Type.IsTranslatable(),
		}
		if t, ok := texts[region.ID]; ok {
			rs.Text = t.TranslatedText
			rs.Fallback = t.OriginalText
			rs.FontSize = t.FontSize
		}
		spec.Regions = append(spec.Regions, rs)
	}
	return spec
}

// Regenerate re-renders the document from the stored snapshot after an edit.
// Analysis, extraction and translation never run again; the task re-enters
// PROCESSING at reconstruction and returns to COMPLETED. A nil edit
// regenerates from the stored data unchanged.
func (o *Orchestrator) Regenerate(ctx context.Context, taskID string, edited *TranslationData) error {
	current, err := o.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if current.Status != StatusCompleted {
		return types.NewValidationError(
			"task must be completed before regeneration, is "+string(current.Status), nil)
	}

	stored, err := o.store.GetTranslationData(taskID)
	if err != nil {
		return err
	}
	if edited != nil {
		if err := ValidateEdit(stored, edited); err != nil {
			return err
		}
	}

	// The transition is the mutual exclusion point between concurrent edits:
	// it must win before the merged snapshot is persisted, otherwise a losing
	// edit could leave its data behind while reporting an error.
	if _, err := o.store.Transition(taskID, StatusProcessing, func(t *Task) {
		t.Progress = Progress{Step: StepAssembling}
		t.TranslatedFile = ""
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	o.registerCancel(taskID, cancel)
	defer o.releaseCancel(taskID)

	if edited != nil {
		stored = MergeEdit(stored, edited)
		err = o.store.SaveTranslationData(taskID, stored)
	}
	if err == nil {
		err = o.regenerate(ctx, taskID, stored)
	}
	if err == nil {
		return nil
	}

	reason := failureReason(err)
	if _, ferr := o.store.Transition(taskID, StatusFailed, func(t *Task) {
		t.Error = reason
	}); ferr != nil {
		logger.Error("failed to record regeneration failure", ferr, logger.String("task", taskID))
	}
	return err
}

func (o *Orchestrator) regenerate(ctx context.Context, taskID string, data *TranslationData) error {
	positions, err := o.store.GetPositionData(taskID)
	if err != nil {
		return err
	}
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(o.workRoot, "regen-"+taskID+"-")
	if err != nil {
		return types.NewStorageError("failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	rasterPaths, err := o.restoreRasters(ctx, taskID, workDir, positions)
	if err != nil {
		return err
	}

	notes, err := o.reconstruct(ctx, taskID, workDir, positions, data, task.TargetLanguage, rasterPaths, nil)
	if err != nil {
		return err
	}

	if _, err := o.store.Transition(taskID, StatusCompleted, func(t *Task) {
		t.TranslatedFile = storage.TaskKey(taskID, storage.BlobTranslatedPDF)
		t.Progress = Progress{Step: StepAssembling, Details: notes}
		t.Error = ""
	}); err != nil {
		return err
	}

	logger.Info("task regenerated", logger.String("task", taskID))
	return nil
}

// restoreRasters writes cached page rasters into the work directory,
// re-rasterizing the original document only when the cache is gone.
func (o *Orchestrator) restoreRasters(ctx context.Context, taskID, workDir string, positions *PositionData) (map[int]string, error) {
	rasterDir := filepath.Join(workDir, "raster")
	if err := os.MkdirAll(rasterDir, 0755); err != nil {
		return nil, types.NewStorageError("failed to create raster directory", err)
	}

	paths := make(map[int]string, len(positions.Pages))
	missing := false
	for _, page := range positions.Pages {
		data, err := o.blobs.Get(storage.RasterKey(taskID, page.PageNumber))
		if err != nil {
			missing = true
			break
		}
		path := filepath.Join(rasterDir, fmt.Sprintf("page_%d.jpg", page.PageNumber))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, types.NewStorageError("failed to restore page raster", err)
		}
		paths[page.PageNumber] = path
	}
	if !missing {
		return paths, nil
	}

	logger.Warn("raster cache incomplete, re-rendering original", logger.String("task", taskID))
	pdfPath, err := o.materializeOriginal(taskID, workDir)
	if err != nil {
		return nil, err
	}
	pages, err := o.rasterizer.RenderPages(ctx, pdfPath, rasterDir)
	if err != nil {
		return nil, err
	}
	o.cacheRasters(taskID, pages)
	return o.rasterPaths(pages), nil
}

// Cancel aborts a running task. The task lands in FAILED with a cancelled
// reason; in-flight results are discarded. Cancelling a task that is not
// running is an error.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if !ok {
		return types.NewValidationError("task is not running", nil)
	}
	cancel()
	logger.Info("task cancelled", logger.String("task", taskID))
	return nil
}

// GetTask returns the task record.
func (o *Orchestrator) GetTask(taskID string) (*Task, error) {
	return o.store.GetTask(taskID)
}

// GetTranslationData returns the stored snapshot.
func (o *Orchestrator) GetTranslationData(taskID string) (*TranslationData, error) {
	return o.store.GetTranslationData(taskID)
}

// GetPositionData returns the stored region geometry.
func (o *Orchestrator) GetPositionData(taskID string) (*PositionData, error) {
	return o.store.GetPositionData(taskID)
}

// TranslatedPDF returns the assembled document bytes.
func (o *Orchestrator) TranslatedPDF(taskID string) ([]byte, error) {
	return o.blobs.Get(storage.TaskKey(taskID, storage.BlobTranslatedPDF))
}

func (o *Orchestrator) materializeOriginal(taskID, workDir string) (string, error) {
	data, err := o.blobs.Get(storage.TaskKey(taskID, storage.BlobOriginalPDF))
	if err != nil {
		return "", err
	}
	path := filepath.Join(workDir, "original.pdf")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", types.NewStorageError("failed to write original PDF", err)
	}
	return path, nil
}

// cacheRasters copies rendered page images into the blob store so
// regeneration can skip rasterization. Cache failures are logged, never
// fatal; regeneration falls back to re-rendering.
func (o *Orchestrator) cacheRasters(taskID string, pages []raster.PageImage) {
	for _, page := range pages {
		data, err := os.ReadFile(page.ImagePath)
		if err != nil {
			logger.Warn("failed to read page raster for caching", logger.Int("page", page.PageNumber), logger.Err(err))
			continue
		}
		if _, err := o.blobs.Put(storage.RasterKey(taskID, page.PageNumber), data); err != nil {
			logger.Warn("failed to cache page raster", logger.Int("page", page.PageNumber), logger.Err(err))
		}
	}
}

func (o *Orchestrator) rasterPaths(pages []raster.PageImage) map[int]string {
	paths := make(map[int]string, len(pages))
	for _, page := range pages {
		paths[page.PageNumber] = page.ImagePath
	}
	return paths
}

// updateProgress applies an advisory task record mutation. Progress writes
// never abort the pipeline; a failed write is logged and pollers see stale
// progress until the next one.
func (o *Orchestrator) updateProgress(taskID string, fn func(*Task)) {
	if _, err := o.store.UpdateTask(taskID, fn); err != nil {
		logger.Warn("failed to update task progress", logger.String("task", taskID), logger.Err(err))
	}
}

func (o *Orchestrator) registerCancel(taskID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[taskID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) releaseCancel(taskID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[taskID]; ok {
		cancel()
		delete(o.cancels, taskID)
	}
	o.mu.Unlock()
}

// failureReason renders an error for the status endpoint, keeping
// cancellation distinguishable from real failures.
func failureReason(err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	var te *types.TaskError
	if errors.As(err, &te) && te.Code == types.ErrCancelled {
		return "cancelled"
	}
	return err.Error()
}
