package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/fieldreport/internal"
	"github.com/DukeRupert/fieldreport/internal/ai"
	"github.com/DukeRupert/fieldreport/internal/ai/anthropic"
	"github.com/DukeRupert/fieldreport/internal/ai/gemini"
	"github.com/DukeRupert/fieldreport/internal/ai/mock"
	"github.com/DukeRupert/fieldreport/internal/auth"
	"github.com/DukeRupert/fieldreport/internal/completion"
	"github.com/DukeRupert/fieldreport/internal/editor"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/sequence"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/DukeRupert/fieldreport/internal/store"
)

// app holds every component built from the configuration.
type app struct {
	cfg       *internal.Config
	logger    *slog.Logger
	db        *sql.DB
	store     store.Store
	files     storage.Storage
	pipeline  *ingest.Pipeline
	renderer  *export.Renderer
	publisher *export.Publisher
	auth      auth.Provider
	manager   *editor.Manager

	closers []func() error
}

// newApp loads configuration, opens the document store and wires the
// editor. Call close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)
	a := &app{cfg: cfg, logger: logger}

	if err := a.init(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	db, err := internal.OpenDatabase(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("database open failed: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	a.store = store.NewSQLiteStore(db, logger)
	logger.Debug("document store ready", "path", cfg.DatabasePath())

	a.files, err = storage.New(ctx, cfg.StorageProvider,
		storage.LocalConfig{BasePath: cfg.LocalStoragePath, BaseURL: cfg.LocalStorageURL},
		storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
			PublicURL:       cfg.S3PublicURL,
		}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	seq, err := a.sequence()
	if err != nil {
		return err
	}

	provider, err := a.aiProvider(ctx)
	if err != nil {
		return err
	}

	a.pipeline = ingest.New(a.files, ingest.NewPreviewCache(320, 80), ingest.Config{
		JPEGQuality: cfg.TranscodeJPEGQuality,
		MaxSize:     cfg.MaxAttachmentSize,
	}, logger)
	a.renderer = export.NewRenderer(logger)
	a.publisher = export.NewPublisher(a.renderer, a.files, logger)
	a.auth = auth.NewStaticProvider(cfg.UserID, cfg.UserName)

	a.manager, err = editor.NewManager(editor.Deps{
		Store:     a.store,
		Pipeline:  a.pipeline,
		Committer: completion.New(a.store, seq, a.publisher, logger),
		Remote:    a.files,
		Publisher: a.publisher,
		AI:        provider,
		Logger:    logger,
	}, editor.Config{
		AutosaveInterval: cfg.AutosaveInterval,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	}, a.auth)
	if err != nil {
		return fmt.Errorf("editor initialization failed: %w", err)
	}
	return nil
}

func (a *app) sequence() (sequence.Generator, error) {
	switch a.cfg.SequenceProvider {
	case "redis":
		gen, err := sequence.NewRedisGenerator(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("sequence initialization failed: %w", err)
		}
		a.closers = append(a.closers, gen.Close)
		return gen, nil
	default:
		a.logger.Warn("using in-memory report numbers; they restart with the process")
		return sequence.NewMemoryGenerator(), nil
	}
}

func (a *app) aiProvider(ctx context.Context) (ai.Provider, error) {
	cfg := a.cfg
	common := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.AIRequestTimeout,
	}

	switch cfg.AIProvider {
	case "anthropic":
		p, err := anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.AnthropicModel,
			ProviderConfig: common,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider initialization failed: %w", err)
		}
		return p, nil
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:         cfg.GeminiAPIKey,
			Model:          cfg.GeminiModel,
			ProviderConfig: common,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gemini provider initialization failed: %w", err)
		}
		return p, nil
	default:
		return mock.New(a.logger), nil
	}
}

// close stops every session with a final save, then releases resources.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("editor shutdown: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp runs fn against a fresh app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

// withSession opens the report and saves it after fn succeeds.
func withSession(cmd *cobra.Command, localID string, fn func(ctx context.Context, a *app, s *editor.Session) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		s, err := a.manager.Open(ctx, localID)
		if err != nil {
			return err
		}
		if err := fn(ctx, a, s); err != nil {
			return err
		}
		return s.SaveDraft(ctx)
	})
}
