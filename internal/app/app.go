package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"CatalogScanner/internal/config"
	"CatalogScanner/internal/httpapi"
	"CatalogScanner/internal/infrastructure/browser"
	"CatalogScanner/internal/infrastructure/parser"
	"CatalogScanner/internal/infrastructure/scheduler"
	"CatalogScanner/internal/infrastructure/spreadsheet"
	"CatalogScanner/internal/infrastructure/storage"
	"CatalogScanner/internal/infrastructure/telegram"
	"CatalogScanner/internal/logging"
	"CatalogScanner/internal/ports"
	"CatalogScanner/internal/resolver"
	"CatalogScanner/internal/session"
	"CatalogScanner/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB

	Catalog  *usecase.CatalogService
	Mediator *usecase.Mediator
	Importer *usecase.Importer
	Scraper  *usecase.Scraper

	scheduler *usecase.Scheduler
}

// New opens the catalog database and builds every component. Nothing talks
// to the marketplace until a scrape starts.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, storage.Driver(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := storage.NewCatalogRepository(db, storage.Driver(cfg.Database.Driver))

	mirror, err := spreadsheet.NewMirror(cfg.Spreadsheets.Output)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("output spreadsheet: %w", err)
	}
	mediator := usecase.NewMediator(store, mirror, logging.Component(baseLogger, "mirror"))

	var input ports.InputSource
	if cfg.Spreadsheets.Input != "" {
		file, err := spreadsheet.NewInputFile(cfg.Spreadsheets.Input)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("input spreadsheet: %w", err)
		}
		input = file
	}

	res, err := buildResolver(cfg.Scrape, baseLogger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sessions := session.NewManager(buildLauncher(cfg.Browser), session.Options{
		HomeURL:          cfg.Scrape.BaseURL,
		ChallengeTimeout: cfg.Scrape.ChallengeTimeout,
		PollInterval:     cfg.Scrape.PollInterval,
	}, logging.Component(baseLogger, "session"))

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase)
	}

	scraper := usecase.NewScraper(usecase.ScraperDeps{
		Store:    store,
		Sessions: sessions,
		Resolver: res,
		Mirror:   mediator,
		Notifier: notifier,
		Logger:   logging.Component(baseLogger, "scraper"),
		Delay:    cfg.Scrape.Delay,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		Catalog:  usecase.NewCatalogService(store, mediator, logging.Component(baseLogger, "catalog")),
		Mediator: mediator,
		Importer: usecase.NewImporter(input, store, mediator, logging.Component(baseLogger, "importer")),
		Scraper:  scraper,
		scheduler: usecase.NewScheduler(
			scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.RunAtStart),
			scraper,
			logging.Component(baseLogger, "scheduler"),
		),
	}, nil
}

func buildResolver(cfg config.ScrapeConfig, log *slog.Logger) (resolver.Resolver, error) {
	worten, err := parser.NewWortenResolver(parser.WortenOptions{
		BaseURL:          cfg.BaseURL,
		RenderTimeout:    cfg.RenderTimeout,
		PollInterval:     cfg.PollInterval,
		ChallengeRetries: challengeRetries(cfg.ChallengeRetries),
	}, logging.Component(log, "resolver.worten"))
	if err != nil {
		return nil, err
	}

	registry := resolver.NewRegistry()
	registry.Register(worten)

	site, err := parser.NewSiteResolver(registry, cfg.Site, logging.Component(log, "resolver"))
	if err != nil {
		return nil, err
	}
	return site, nil
}

// challengeRetries maps a configured count onto the resolver option, where
// zero selects the default and a negative value disables retries.
func challengeRetries(configured int) int {
	if configured == 0 {
		return -1
	}
	return configured
}

func buildLauncher(cfg config.BrowserConfig) ports.BrowserLauncher {
	if cfg.Mode == config.BrowserChrome {
		return browser.NewChromeLauncher(browser.ChromeOptions{
			Headless:  cfg.Headless,
			ExecPath:  cfg.ExecPath,
			UserAgent: cfg.UserAgent,
			NoSandbox: cfg.NoSandbox,
		})
	}
	return browser.NewHTTPLauncher(browser.HTTPOptions{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

// Handler builds the REST surface.
func (a *Application) Handler() http.Handler {
	return httpapi.NewHandler(httpapi.Deps{
		Catalog:    a.Catalog,
		Mirror:     a.Mediator,
		Importer:   a.Importer,
		Scraper:    a.Scraper,
		MirrorPath: a.cfg.Spreadsheets.Output,
		Logger:     logging.Component(a.logger, "http"),
	}).Routes()
}

// Serve runs the HTTP API and the periodic scraper until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = a.scheduler.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http api: %w", err)
	}
	a.logger.Info("http api stopped")
	return nil
}

// Close releases the database.
func (a *Application) Close() error {
	return a.db.Close()
}
