package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// Scheduler wires the interval driver with the scrape orchestrator.
type Scheduler struct {
	driver  ports.Scheduler
	scraper *Scraper
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring batches.
func NewScheduler(driver ports.Scheduler, scraper *Scraper, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, scraper: scraper, logger: log}
}

// Start registers a full-catalog batch with the provided scheduler. A tick
// that lands while another batch runs is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.scraper == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled scrape triggered", "at", trigger.UTC().Format(time.RFC3339))
		_, err := s.scraper.ScrapeAll(ctx, Selection{}, -1)
		switch {
		case errors.Is(err, domain.ErrBatchRunning):
			s.logger.Info("scheduled scrape skipped, batch already running")
		case err != nil:
			s.logger.Error("scheduled scrape failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
