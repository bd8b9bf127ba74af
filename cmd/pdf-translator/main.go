// Command pdf-translator runs the layout-preserving PDF translation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"pdf-translator/internal/config"
	"pdf-translator/internal/fonts"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/pdfgen"
	"pdf-translator/internal/raster"
	"pdf-translator/internal/server"
	"pdf-translator/internal/storage"
	"pdf-translator/internal/task"
	"pdf-translator/internal/translate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pdf-translator:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "config file path (default ~/.config/pdf-translator/pdf-translator-config.json)")
		addr        = flag.String("addr", "", "listen address, overrides config")
		dataDir     = flag.String("data-dir", "", "storage directory, overrides config")
		fontDir     = flag.String("font-dir", "", "TrueType font directory, overrides config")
		onnxLibrary = flag.String("onnx-library", os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"), "path to the onnxruntime shared library")
		verbose     = flag.Bool("verbose", false, "enable debug logging to console")
	)
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		return err
	}
	if err := manager.Load(); err != nil {
		return err
	}
	cfg := manager.GetConfig()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDirectory = *dataDir
	}
	if *fontDir != "" {
		cfg.FontDirectory = *fontDir
	}
	cfg.OpenAIAPIKey = manager.GetAPIKey()
	cfg.OpenAIBaseURL = manager.GetBaseURL()

	logConfig := logger.DefaultConfig()
	logConfig.EnableConsole = *verbose
	if *verbose {
		logConfig.Level = logger.LevelDebug
	}
	if err := logger.Init(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	// Without installed TrueType fonts the renderer is limited to the core
	// PDF fonts, so CJK targets degrade to raster. Not fatal.
	if _, err := fonts.InstallDir(cfg.FontDirectory); err != nil {
		logger.Warn("font installation failed, CJK targets will keep original raster", logger.Err(err))
	}

	blobs, err := storage.NewFileStore(cfg.DataDirectory)
	if err != nil {
		return err
	}

	detector, err := layout.NewONNXDetector(cfg.LayoutModelPath, *onnxLibrary)
	if err != nil {
		return fmt.Errorf("failed to load layout model: %w", err)
	}
	defer detector.Close()

	analyzer, err := layout.NewAnalyzer(detector, cfg.Confidence)
	if err != nil {
		return err
	}

	ctx := context.Background()
	chatModelConfig := &openai.ChatModelConfig{
		Model:  cfg.OpenAIModel,
		APIKey: cfg.OpenAIAPIKey,
	}
	if cfg.OpenAIBaseURL != "" {
		chatModelConfig.BaseURL = cfg.OpenAIBaseURL
	}
	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	workRoot := filepath.Join(cfg.DataDirectory, "work")
	if err := os.MkdirAll(workRoot, 0755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	orchestrator := task.NewOrchestrator(
		task.NewStore(blobs),
		blobs,
		raster.NewRasterizer(cfg.RenderDPI),
		analyzer,
		ocr.NewExtractor(ocr.NewHTTPEngine(cfg.OCREndpoint)),
		translate.NewBatcher(chatModel, cfg.MaxBatchChars, cfg.TranslateConcurrency),
		pdfgen.NewReconstructor(),
		fonts.NewResolver(),
		cfg,
		workRoot,
	)

	srv := server.New(orchestrator, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}
