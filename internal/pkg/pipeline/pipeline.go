// Package pipeline runs one batch of discovered image references through
// three pooled stages: metadata extraction, binary download, and
// validate+persist. All three stages run on the same generic worker pool;
// the driving loop routes each stage's successes into the next pool and
// counts terminal outcomes, so a batch always accounts for all of its
// inputs.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/controler/pause"
	"github.com/internetarchive/Talos/internal/pkg/fetcher"
	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/parser"
	"github.com/internetarchive/Talos/internal/pkg/seencheck"
	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/internal/pkg/storage"
	"github.com/internetarchive/Talos/internal/pkg/store"
	"github.com/internetarchive/Talos/pkg/models"
)

// Pipeline wires the stage pools to their collaborators. Construct one
// per process and reuse it across batches.
type Pipeline struct {
	Fetcher         *fetcher.Fetcher
	Store           *store.Store
	Layout          *storage.Layout
	Parser          parser.Parser
	MetadataWorkers int
	UseSeencheck    bool

	logger *log.FieldedLogger
}

func New(cfg *config.Config, f *fetcher.Fetcher, s *store.Store, l *storage.Layout, p parser.Parser) *Pipeline {
	return &Pipeline{
		Fetcher:         f,
		Store:           s,
		Layout:          l,
		Parser:          p,
		MetadataWorkers: cfg.WorkersCount,
		UseSeencheck:    cfg.UseSeencheck,
		logger: log.NewFieldedLogger(&log.Fields{
			"component": "pipeline",
		}),
	}
}

// BatchResult tallies the fate of every reference fed into one batch.
type BatchResult struct {
	Discovered int
	Skipped    int
	Persisted  int
	Errored    int
	Banned     int
	Bytes      int64

	// Fatal is set when a stage hit an error class that must stop the
	// whole run, e.g. the remote side reporting insufficient storage.
	Fatal error
}

// batchState carries the cancel plumbing shared by all stages of one
// batch.
type batchState struct {
	cancel    context.CancelFunc
	fatalOnce sync.Once
	fatalErr  error
}

func (b *batchState) fatal(err error) {
	b.fatalOnce.Do(func() {
		b.fatalErr = err
		b.cancel()
	})
}

// RunBatch pushes refs through the stage pools and blocks until every
// item is terminal. downloadWorkers is decided per batch by the adaptive
// concurrency controller.
func (p *Pipeline) RunBatch(ctx context.Context, refs []models.ItemRef, downloadWorkers int) BatchResult {
	result := BatchResult{Discovered: len(refs)}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &batchState{cancel: cancel}

	items := p.dedup(batchCtx, refs, &result)
	if len(items) == 0 {
		return result
	}

	metaPool := NewPool("metadata", p.MetadataWorkers, len(items), p.stageMetadata)
	dlPool := NewPool("download", downloadWorkers, len(items), p.stageDownload)
	// single persist worker: the state store is single-writer
	persistPool := NewPool("persist", 1, len(items), p.stagePersist)

	metaPool.Start(batchCtx)
	dlPool.Start(batchCtx)
	persistPool.Start(batchCtx)

	for _, item := range items {
		item.SetStatus(models.ItemMetadataPending)
		metaPool.Submit(item)
	}

	for terminal := 0; terminal < len(items); {
		select {
		case item := <-metaPool.Results():
			if item.GetStatus() == models.ItemMetadataOK {
				item.SetStatus(models.ItemDownloadPending)
				dlPool.Submit(item)
				continue
			}
			// banned authors end here
			p.account(item, &result)
			terminal++
		case failed := <-metaPool.Errors():
			p.fail(state, failed, models.ItemMetadataError, &result)
			terminal++
		case item := <-dlPool.Results():
			if item.GetStatus() == models.ItemDownloadOK {
				item.SetStatus(models.ItemValidatePending)
				persistPool.Submit(item)
				continue
			}
			// lost the target lock to a concurrent worker
			p.account(item, &result)
			terminal++
		case failed := <-dlPool.Errors():
			p.fail(state, failed, models.ItemDownloadError, &result)
			terminal++
		case item := <-persistPool.Results():
			p.account(item, &result)
			terminal++
		case failed := <-persistPool.Errors():
			p.fail(state, failed, models.ItemValidateError, &result)
			terminal++
		}
	}

	metaPool.Drain()
	dlPool.Drain()
	persistPool.Drain()

	metaPool.Shutdown()
	dlPool.Shutdown()
	persistPool.Shutdown()

	result.Fatal = state.fatalErr
	return result
}

// dedup is the synchronous pre-stage: it assigns the stable image ID and
// drops references already known to the seencheck or the state store.
func (p *Pipeline) dedup(ctx context.Context, refs []models.ItemRef, result *BatchResult) []*models.Item {
	var items []*models.Item

	for _, ref := range refs {
		imageID := models.ExtractImageID(ref.ImageURL)

		if p.UseSeencheck && seencheck.IsSeen(imageID) {
			result.Skipped++
			stats.ItemsSkippedIncr()
			continue
		}

		saved, err := p.Store.IsImageSaved(ctx, imageID)
		if err != nil {
			p.logger.Error("dedup lookup failed", "image_id", imageID, "err", err.Error())
		}
		if saved {
			result.Skipped++
			stats.ItemsSkippedIncr()
			continue
		}

		item := models.NewItem(ref)
		item.ImageID = imageID
		items = append(items, item)
	}

	return items
}

// account tallies one terminal item.
func (p *Pipeline) account(item *models.Item, result *BatchResult) {
	switch item.GetStatus() {
	case models.ItemPersisted:
		result.Persisted++
		result.Bytes += item.Bytes
		stats.ItemsPersistedIncr()
	case models.ItemDedupedSkip:
		result.Skipped++
		stats.ItemsSkippedIncr()
	case models.ItemBanned:
		result.Banned++
		stats.ItemsBannedIncr()
	default:
		result.Errored++
		stats.ItemsErroredIncr()
		if item.Error != nil {
			p.logger.Warn("item failed", "item", item.GetShortID(), "image_id", item.ImageID, "status", item.GetStatus().String(), "err", item.Error.Error())
		}
	}
}

// fail marks a stage failure terminal, promoting fatal-class errors to a
// batch abort.
func (p *Pipeline) fail(state *batchState, failed TaskError[*models.Item], status models.ItemState, result *BatchResult) {
	if errors.Is(failed.Err, fetcher.ErrFatalHTTP) {
		state.fatal(failed.Err)
	}

	failed.Input.Error = failed.Err
	failed.Input.SetStatus(status)
	p.account(failed.Input, result)
}

// waitIfPaused blocks while the pause controller holds the pipeline, e.g.
// during a low disk space episode.
func waitIfPaused(ctx context.Context, chans *pause.ControlChans) {
	select {
	case <-chans.PauseCh:
		// blocks until Resume reads the handshake
		select {
		case chans.ResumeCh <- struct{}{}:
		case <-ctx.Done():
		}
	default:
	}
}
