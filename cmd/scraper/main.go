package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Sidth3dr3amer/NityaBSE/internal/browse"
	"github.com/Sidth3dr3amer/NityaBSE/internal/config"
	"github.com/Sidth3dr3amer/NityaBSE/internal/enrich"
	"github.com/Sidth3dr3amer/NityaBSE/internal/notify"
	"github.com/Sidth3dr3amer/NityaBSE/internal/pipeline"
	"github.com/Sidth3dr3amer/NityaBSE/internal/render"
	"github.com/Sidth3dr3amer/NityaBSE/internal/store"
	"github.com/Sidth3dr3amer/NityaBSE/internal/summarize"
	"github.com/Sidth3dr3amer/NityaBSE/internal/upload"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("NITYABSE_CONFIG"), "path to YAML config file")
		once       = flag.Bool("once", false, "run a single ingestion pass and exit")
		interval   = flag.Duration("interval", 0, "override the run interval")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		zap.NewExample().Fatal("invalid log level", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once, *interval); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, once bool, intervalOverride time.Duration) error {
	features := cfg.Features()
	logger.Info("starting",
		zap.Bool("upload", features.Upload),
		zap.Bool("pdf_rendering", features.PDFRendering),
		zap.Bool("summarizer", features.Summarizer),
		zap.Bool("email", features.Email),
	)

	db, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	browser, err := browse.New(ctx)
	if err != nil {
		return err
	}
	defer browser.Close()

	var uploader enrich.Uploader
	if features.Upload {
		uploader = upload.New(upload.Config{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
		})
	}

	var raster enrich.Rasterizer
	if features.PDFRendering {
		raster = render.Rasterizer{}
	}

	collector := enrich.NewCollector(uploader, raster, logger.Named("enrich"))

	var chat summarize.ChatClient
	if features.Summarizer {
		var opts []summarize.ClientOption
		if cfg.Summarizer.BaseURL != "" {
			opts = append(opts, summarize.WithBaseURL(cfg.Summarizer.BaseURL))
		}
		chat = summarize.NewClient(cfg.Summarizer.APIKey, opts...)
	}
	summarizer := summarize.New(chat, cfg.Summarizer.Model, logger.Named("summarize"))

	p := pipeline.New(pipeline.Deps{
		NewPage:   func() pipeline.Page { return browser.NewTab() },
		Store:     db,
		Enrich:    collector,
		Summarize: summarizer,
		Logger:    logger.Named("pipeline"),
		FeedURL:   cfg.Scraper.FeedURL,
	})

	notifier := notify.New(notify.Config{
		SMTPServer: cfg.Email.SMTPServer,
		SMTPPort:   cfg.Email.SMTPPort,
		SMTPUser:   cfg.Email.User,
		SMTPPass:   cfg.Email.Pass,
		FromEmail:  cfg.Email.User,
		ToEmail:    cfg.Email.To,
		Enabled:    features.Email,
	}, db, logger.Named("notify"))

	runJob := func() error {
		counters, err := p.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("ingestion pass finished",
			zap.Int("success", counters.Success),
			zap.Int("skipped", counters.Skipped),
			zap.Int("failed", counters.Failed),
		)
		if err := notifier.ProcessUnsent(ctx); err != nil {
			logger.Warn("email pass failed", zap.Error(err))
		}
		return nil
	}

	if once {
		return runJob()
	}

	interval := cfg.Scraper.RunInterval()
	if intervalOverride > 0 {
		interval = intervalOverride
	}
	logger.Info("scheduling runs", zap.Duration("interval", interval))

	// Runs are sequential; a slow pass delays the next tick rather than
	// overlapping with it.
	if err := runJob(); err != nil {
		logger.Error("ingestion pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := runJob(); err != nil {
				logger.Error("ingestion pass failed", zap.Error(err))
			}
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
