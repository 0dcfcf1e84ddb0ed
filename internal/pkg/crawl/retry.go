package crawl

import (
	"context"

	"github.com/internetarchive/Talos/internal/pkg/stats"
)

// RetryFailedPages reprocesses every failed page still under the attempt
// bound. Pages that clear get their failure record resolved and a normal
// completion record; pages that fail again get their attempt count bumped,
// flipping to terminal once the bound is reached.
func (c *Crawl) RetryFailedPages(ctx context.Context) error {
	pages, err := c.store.PendingFailedPages(ctx)
	if err != nil {
		return err
	}

	if len(pages) == 0 {
		c.logger.Info("no failed pages to retry")
		return nil
	}

	c.logger.Info("retrying failed pages", "count", len(pages))

	for _, fp := range pages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.store.MarkFailedPageRetried(ctx, fp.PageNumber); err != nil {
			return err
		}

		// earlier attempts feed the fetcher's progressive timeouts
		_, err := c.processPage(ctx, fp.PageNumber, fp.Attempts)
		if err != nil {
			if isFatal(err) {
				return err
			}
			continue
		}

		if err := c.store.ResolveFailedPage(ctx, fp.PageNumber); err != nil {
			return err
		}
		c.logger.Info("failed page recovered", "page", fp.PageNumber, "attempts", fp.Attempts)
	}

	remaining, err := c.store.PendingFailedPages(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("retry pass finished",
		"recovered", len(pages)-len(remaining),
		"still_failing", len(remaining),
		"pages_failed_total", stats.PagesFailedGet())

	return nil
}
