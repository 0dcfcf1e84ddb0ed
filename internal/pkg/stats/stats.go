package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulbellamy/ratecounter"
)

type stats struct {
	PagesProcessed   *counter
	PagesSkipped     *counter
	PagesFailed      *counter
	ItemsPersisted   *counter
	ItemsSkipped     *counter
	ItemsErrored     *counter
	ItemsBanned      *counter
	BytesDownloaded  *counter
	MetadataRoutines *counter
	DownloadRoutines *counter
	ValidateRoutines *counter
	Paused           atomic.Bool

	ItemsRate *ratecounter.RateCounter
	BytesRate *ratecounter.RateCounter

	httpReturnCodes sync.Map // status code string -> *counter
}

var (
	globalStats *stats
	doOnce      sync.Once
)

func Init() error {
	doOnce.Do(func() {
		globalStats = &stats{
			PagesProcessed:   &counter{},
			PagesSkipped:     &counter{},
			PagesFailed:      &counter{},
			ItemsPersisted:   &counter{},
			ItemsSkipped:     &counter{},
			ItemsErrored:     &counter{},
			ItemsBanned:      &counter{},
			BytesDownloaded:  &counter{},
			MetadataRoutines: &counter{},
			DownloadRoutines: &counter{},
			ValidateRoutines: &counter{},
			ItemsRate:        ratecounter.NewRateCounter(1 * time.Second),
			BytesRate:        ratecounter.NewRateCounter(1 * time.Second),
		}
		initPrometheus()
	})

	return nil
}

func Reset() {
	globalStats.PagesProcessed.reset()
	globalStats.PagesSkipped.reset()
	globalStats.PagesFailed.reset()
	globalStats.ItemsPersisted.reset()
	globalStats.ItemsSkipped.reset()
	globalStats.ItemsErrored.reset()
	globalStats.ItemsBanned.reset()
	globalStats.BytesDownloaded.reset()
	globalStats.MetadataRoutines.reset()
	globalStats.DownloadRoutines.reset()
	globalStats.ValidateRoutines.reset()
	globalStats.httpReturnCodes.Range(func(key, _ any) bool {
		globalStats.httpReturnCodes.Delete(key)
		return true
	})
}

// GetMap returns a map of the current stats, used for the final run summary.
func GetMap() map[string]interface{} {
	codes := map[string]uint64{}
	globalStats.httpReturnCodes.Range(func(key, value any) bool {
		codes[key.(string)] = value.(*counter).get()
		return true
	})

	return map[string]interface{}{
		"Pages processed":   globalStats.PagesProcessed.get(),
		"Pages skipped":     globalStats.PagesSkipped.get(),
		"Pages failed":      globalStats.PagesFailed.get(),
		"Items persisted":   globalStats.ItemsPersisted.get(),
		"Items skipped":     globalStats.ItemsSkipped.get(),
		"Items errored":     globalStats.ItemsErrored.get(),
		"Items banned":      globalStats.ItemsBanned.get(),
		"Bytes downloaded":  humanize.Bytes(globalStats.BytesDownloaded.get()),
		"Items/s":           globalStats.ItemsRate.Rate(),
		"Bytes/s":           humanize.Bytes(uint64(globalStats.BytesRate.Rate())),
		"HTTP return codes": codes,
		"Is paused?":        globalStats.Paused.Load(),
	}
}
