// Package crawl is the orchestrator: it owns the sequential page loop,
// turns each search page into a pipeline batch, tracks durable page
// progress, and decides when a failure is worth a cooldown, a failed-page
// record, or stopping the whole run.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/fetcher"
	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/parser"
	"github.com/internetarchive/Talos/internal/pkg/pipeline"
	"github.com/internetarchive/Talos/internal/pkg/seencheck"
	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/internal/pkg/storage"
	"github.com/internetarchive/Talos/internal/pkg/store"
	"github.com/internetarchive/Talos/internal/pkg/watchers"
	"github.com/internetarchive/Talos/pkg/models"
)

// Crawl holds everything one crawler process needs: the state store, the
// session pool, the pipeline and the adaptive concurrency controller.
type Crawl struct {
	cfg      *config.Config
	store    *store.Store
	fetcher  *fetcher.Fetcher
	pipeline *pipeline.Pipeline
	parser   parser.Parser
	adaptive *AdaptiveController

	currentPage atomic.Int64

	logger *log.FieldedLogger
}

// CurrentPage returns the page the loop is on, for resume argument
// construction when the process is replaced mid-run.
func (c *Crawl) CurrentPage() int {
	return int(c.currentPage.Load())
}

// New builds a ready-to-run Crawl from the global config, opening the
// state store and the seencheck database.
func New(cfg *config.Config) (*Crawl, error) {
	if err := log.Start(); err != nil {
		return nil, err
	}

	logger := log.NewFieldedLogger(&log.Fields{
		"component": "crawl",
	})

	if err := os.MkdirAll(cfg.JobPath, 0o755); err != nil {
		logger.Error("can't create job directory", "err", err.Error())
		return nil, err
	}
	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		logger.Error("can't create archive directory", "err", err.Error())
		return nil, err
	}

	if err := watchers.CheckDiskSpace(cfg.ArchiveDir); err != nil {
		logger.Error("can't start crawl", "err", err.Error())
		return nil, err
	}

	if err := stats.Init(); err != nil {
		return nil, err
	}

	if cfg.UseSeencheck {
		if err := seencheck.Start(cfg.JobPath); err != nil {
			logger.Error("unable to start seencheck", "err", err.Error())
			return nil, err
		}
	}

	st, err := store.Open(cfg.DBFile)
	if err != nil {
		return nil, err
	}

	var seedURL *url.URL
	if u, err := url.Parse(fmt.Sprintf(cfg.SearchURLTemplate, 1)); err == nil {
		seedURL = u
	}

	pool := fetcher.NewSessionPoolFromConfig(cfg, seedURL)
	f := fetcher.New(pool, cfg)
	layout := storage.NewLayout(afero.NewOsFs(), cfg.ArchiveDir, cfg.FilesPerSubdir)
	htmlParser := parser.NewHTMLParser()

	return &Crawl{
		cfg:      cfg,
		store:    st,
		fetcher:  f,
		pipeline: pipeline.New(cfg, f, st, layout, htmlParser),
		parser:   htmlParser,
		adaptive: NewAdaptiveController(cfg.WorkersCount),
		logger:   logger,
	}, nil
}

// Close releases the store, the seencheck database and the session pool.
func (c *Crawl) Close() {
	c.fetcher.Pool.Close()
	if c.cfg.UseSeencheck {
		seencheck.Close()
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("error closing state store", "err", err.Error())
	}
	log.Stop()
}

// Run walks the page range sequentially. An EndPage of 0 means open-ended:
// the run stops at the first page with no results. Fatal errors (disk
// full, HTTP 507) abort the loop and propagate to the caller.
func (c *Crawl) Run(ctx context.Context) error {
	go watchers.WatchDiskSpace(c.cfg.ArchiveDir, 5*time.Second)
	defer watchers.StopDiskWatcher()

	c.logger.Info("starting crawl", "job", c.cfg.Job, "start_page", c.cfg.StartPage, "end_page", c.cfg.EndPage)

	for page := c.cfg.StartPage; c.cfg.EndPage == 0 || page <= c.cfg.EndPage; page++ {
		c.currentPage.Store(int64(page))

		if ctx.Err() != nil {
			c.logger.Info("crawl interrupted", "page", page)
			return ctx.Err()
		}

		skip, err := c.store.ShouldSkipPage(ctx, page)
		if err != nil {
			return err
		}
		if skip {
			stats.PagesSkippedIncr()
			c.logger.Debug("page already completed, skipping", "page", page)
			continue
		}

		if err := watchers.CheckDiskSpace(c.cfg.ArchiveDir); err != nil {
			c.logger.Error("stopping crawl", "err", err.Error())
			return err
		}

		empty, err := c.processPage(ctx, page, 0)
		if err != nil {
			if isFatal(err) {
				return err
			}
			continue
		}

		if empty && c.cfg.EndPage == 0 {
			c.logger.Info("empty page on an open-ended crawl, stopping", "page", page)
			return nil
		}

		watchers.LogSpaceProjection(stats.BytesDownloadedGet(), page-c.cfg.StartPage+1, c.cfg.EndPage-c.cfg.StartPage+1)

		if c.cfg.PageDelay > 0 {
			if !sleepCtx(ctx, time.Duration(c.cfg.PageDelay)*time.Second) {
				return ctx.Err()
			}
		}
	}

	c.logger.Info("crawl finished", "job", c.cfg.Job)
	return nil
}

// processPage fetches and parses one search page, runs its batch and
// records the page outcome. attemptOffset carries a failed page's earlier
// attempts into the fetcher so a retry pass gets the longer timeouts.
//
// A transient fetch failure leaves the page unrecorded and still eligible,
// it just costs a cooldown so a struggling site gets air. Only permanent
// HTTP errors and partial batch failures earn a failed-page record.
func (c *Crawl) processPage(ctx context.Context, page, attemptOffset int) (empty bool, err error) {
	refs, err := c.fetchSearchPage(ctx, page, attemptOffset)
	if err != nil {
		switch {
		case isFatal(err):
			return false, err
		case errors.Is(err, fetcher.ErrPermanentHTTP):
			c.pageFailed(ctx, page, err)
		default:
			c.adaptive.RecordFailure()
			c.logger.Warn("transient page failure, leaving the page eligible",
				"page", page, "err", err.Error(), "download_workers", c.adaptive.Workers())
			c.cooldown(ctx)
		}
		return false, err
	}

	if len(refs) == 0 {
		stats.PagesProcessedIncr()
		if err := c.store.MarkPageCompleted(ctx, models.PageProgress{
			PageNumber:     page,
			CompletionDate: time.Now(),
		}); err != nil {
			return false, err
		}
		return true, nil
	}

	result := c.pipeline.RunBatch(ctx, refs, c.adaptive.Workers())
	if result.Fatal != nil {
		return false, result.Fatal
	}

	if result.Errored > 0 {
		batchErr := fmt.Errorf("%d of %d items failed", result.Errored, result.Discovered)
		c.pageFailed(ctx, page, batchErr)
		return false, batchErr
	}

	resolved := result.Persisted + result.Skipped + result.Banned
	if err := c.store.MarkPageCompleted(ctx, models.PageProgress{
		PageNumber:     page,
		CompletionDate: time.Now(),
		ImageCount:     resolved,
		TotalBytes:     result.Bytes,
	}); err != nil {
		return false, err
	}

	c.adaptive.RecordSuccess()
	stats.PagesProcessedIncr()
	c.logger.Info("page done", "page", page,
		"persisted", result.Persisted, "skipped", result.Skipped,
		"banned", result.Banned, "bytes", result.Bytes,
		"download_workers", c.adaptive.Workers())

	return false, nil
}

func (c *Crawl) fetchSearchPage(ctx context.Context, page, attemptOffset int) ([]models.ItemRef, error) {
	pageURL := fmt.Sprintf(c.cfg.SearchURLTemplate, page)

	resp, done, err := c.fetcher.FetchAttempt(ctx, pageURL, attemptOffset)
	if err != nil {
		return nil, err
	}
	defer done()
	defer resp.Body.Close()

	return c.parser.ParseSearchPage(resp.Body)
}

func (c *Crawl) pageFailed(ctx context.Context, page int, pageErr error) {
	stats.PagesFailedIncr()
	c.adaptive.RecordFailure()
	c.logger.Warn("page failed", "page", page, "err", pageErr.Error(), "download_workers", c.adaptive.Workers())

	if err := c.store.RecordFailedPage(ctx, page, pageErr.Error(), c.cfg.MaxPageAttempts); err != nil {
		c.logger.Error("unable to record failed page", "page", page, "err", err.Error())
	}
}

// cooldown lets the site breathe after a transient page failure.
func (c *Crawl) cooldown(ctx context.Context) {
	d := time.Duration(c.cfg.PageCooldown) * time.Second
	if d <= 0 {
		d = 5 * time.Minute
	}
	c.logger.Info("cooling down", "duration", d.String())
	sleepCtx(ctx, d)
}

func isFatal(err error) bool {
	return errors.Is(err, fetcher.ErrFatalHTTP)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
