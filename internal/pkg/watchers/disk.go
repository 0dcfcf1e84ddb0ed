// Package watchers implements the capacity guard: a free-disk-space
// precondition check, a background watcher that pauses the pipeline when
// space runs out mid-page, and a space-need estimator for operators.
package watchers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/controler/pause"
	"github.com/internetarchive/Talos/internal/pkg/log"
)

var (
	diskWatcherCtx, diskWatcherCancel = context.WithCancel(context.Background())
	diskWatcherWg                     sync.WaitGroup
)

const GB = 1024 * 1024 * 1024

// checkThreshold returns an error when free space sits below the
// configured floor. The floor defaults to 2 GB when unset.
func checkThreshold(free uint64, minSpaceRequired int) error {
	threshold := uint64(minSpaceRequired) * GB
	if minSpaceRequired <= 0 {
		threshold = 2 * GB
	}

	if free < threshold {
		return fmt.Errorf("low disk space: free=%.2f GB, threshold=%.2f GB", float64(free)/1e9, float64(threshold)/1e9)
	}

	return nil
}

// CheckDiskSpace measures free space on the volume holding path and
// returns an error when it falls below the configured floor. Crawling
// never proceeds past a failing check.
func CheckDiskSpace(path string) error {
	free, err := freeSpace(path)
	if err != nil {
		return fmt.Errorf("unable to retrieve disk stats: %w", err)
	}

	minSpace := 0
	if cfg := config.Get(); cfg != nil {
		minSpace = cfg.MinSpaceRequired
	}

	return checkThreshold(free, minSpace)
}

// EstimateSpaceNeed extrapolates the total bytes the remaining pages will
// need from the bytes downloaded so far. Operator visibility only, it is
// never used for throttling.
func EstimateSpaceNeed(bytesSoFar uint64, pagesDone, pagesTotal int) uint64 {
	if pagesDone <= 0 || pagesTotal <= pagesDone {
		return 0
	}

	perPage := bytesSoFar / uint64(pagesDone)
	return perPage * uint64(pagesTotal-pagesDone)
}

// WatchDiskSpace watches the disk space and pauses the pipeline if it's low
func WatchDiskSpace(path string, interval time.Duration) {
	diskWatcherWg.Add(1)
	defer diskWatcherWg.Done()

	logger := log.NewFieldedLogger(&log.Fields{
		"component": "watchers.diskWatcher",
	})

	paused := false

	for {
		select {
		case <-diskWatcherCtx.Done():
			logger.Debug("closed")
			if paused {
				pause.Resume()
			}
			return
		case <-time.After(interval):
			err := CheckDiskSpace(path)

			if err != nil && !paused {
				logger.Warn("low disk space, pausing the pipeline", "err", err.Error())
				pause.Pause("Not enough disk space!!!")
				paused = true
			} else if err == nil && paused {
				logger.Info("disk space is sufficient, resuming the pipeline")
				pause.Resume()
				paused = false
			}
		}
	}
}

// LogSpaceProjection logs the estimator's projection for the remaining crawl.
func LogSpaceProjection(bytesSoFar uint64, pagesDone, pagesTotal int) {
	need := EstimateSpaceNeed(bytesSoFar, pagesDone, pagesTotal)
	if need == 0 {
		return
	}

	log.Info("projected space need for remaining pages",
		"downloaded", humanize.Bytes(bytesSoFar),
		"pages_done", pagesDone,
		"pages_total", pagesTotal,
		"projected", humanize.Bytes(need))
}

// StopDiskWatcher stops the disk watcher by canceling the context and waiting for the goroutine to finish.
func StopDiskWatcher() {
	diskWatcherCancel()
	diskWatcherWg.Wait()
}
