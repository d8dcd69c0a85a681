// Package app wires configuration into the extraction pipeline shared by the
// daemon and the CLI.
package app

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/async"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/donut"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/ocr"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/pipeline"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/repository"
)

type App struct {
	Config    *common.Config
	Processor *pipeline.Processor
	Models    *donut.Service
	Store     *repository.Store
	Pool      *async.Pool
	OCRLabel  string

	logger *slog.Logger
}

// Build opens the ledger and assembles rasterizer, OCR engine, field model and
// worker pool. The field model is not loaded here.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runner := document.ExecRunner{}

	store, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, common.WrapError(err, "open ledger")
	}

	rasterizer := document.NewRasterizer(document.Config{Pdftoppm: cfg.OCR.Pdftoppm}, runner, logger)

	backend, err := ocr.NewBackend(cfg.OCR.Backend, ocr.TesseractConfig{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Lang,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
	}, runner, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	engine := ocr.NewEngine(backend, ocr.Config{ReadingOrder: cfg.OCR.ReadingOrder}, logger)

	var fetcher donut.ArtifactFetcher = donut.HubFetcher{
		RepoID:   cfg.Donut.ModelID,
		Token:    cfg.Donut.HFToken,
		CacheDir: cfg.Donut.CacheDir,
	}
	if cfg.Donut.LocalDir != "" {
		fetcher = donut.DirFetcher{Dir: cfg.Donut.LocalDir}
	}
	runtime := donut.NewSidecarClient(donut.SidecarConfig{BaseURL: cfg.Donut.SidecarURL}, logger)
	loader := donut.NewArtifactLoader(donut.LoaderConfig{
		ModelID:    cfg.Donut.ModelID,
		DeviceMode: cfg.Donut.Device,
	}, fetcher, runtime, logger)
	models := donut.NewService(donut.ServiceConfig{
		ModelID:     cfg.Donut.ModelID,
		LoadTimeout: cfg.Donut.LoadTimeout,
	}, loader, logger)

	fields := extract.NewFieldExtractor(models, extract.Config{FieldTimeout: cfg.Donut.FieldTimeout}, logger)

	pool := async.NewPool(logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithWaitTimeout(cfg.Queue.WaitTimeout),
	)

	opts := []pipeline.Option{pipeline.WithJobs(store.Jobs)}
	if cfg.Cache.Enabled {
		opts = append(opts, pipeline.WithCache(cfg.Cache.TTL))
	}
	proc := pipeline.NewProcessor(logger, pipeline.Config{
		LowConfidence: cfg.OCR.LowConfidence,
		ModelName:     cfg.Donut.ModelID,
	}, rasterizer, engine, fields, pool, opts...)

	label := "Tesseract"
	if backend.Name() == "gosseract" {
		label = "Tesseract (gosseract)"
	}

	return &App{
		Config:    cfg,
		Processor: proc,
		Models:    models,
		Store:     store,
		Pool:      pool,
		OCRLabel:  label,
		logger:    logger,
	}, nil
}

// Preload starts loading the field model in the background.
func (a *App) Preload(ctx context.Context) {
	go func() {
		if _, err := a.Models.Get(ctx); err != nil {
			a.logger.Warn("donut.preload.failed", "error", err)
		}
	}()
}

// Close drains the pool and releases caches and the ledger.
func (a *App) Close(ctx context.Context) {
	a.Pool.Shutdown(ctx)
	a.Processor.Close()
	a.Store.Close()
}
