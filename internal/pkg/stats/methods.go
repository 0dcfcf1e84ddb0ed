package stats

import "strings"

// PagesProcessedIncr increments the PagesProcessed counter by 1.
func PagesProcessedIncr() {
	globalStats.PagesProcessed.incr(1)
	globalPromStats.pagesProcessed.WithLabelValues(promLabels()...).Inc()
}

// PagesProcessedGet returns the current value of the PagesProcessed counter.
func PagesProcessedGet() uint64 { return globalStats.PagesProcessed.get() }

// PagesSkippedIncr increments the PagesSkipped counter by 1.
func PagesSkippedIncr() {
	globalStats.PagesSkipped.incr(1)
	globalPromStats.pagesSkipped.WithLabelValues(promLabels()...).Inc()
}

// PagesSkippedGet returns the current value of the PagesSkipped counter.
func PagesSkippedGet() uint64 { return globalStats.PagesSkipped.get() }

// PagesFailedIncr increments the PagesFailed counter by 1.
func PagesFailedIncr() {
	globalStats.PagesFailed.incr(1)
	globalPromStats.pagesFailed.WithLabelValues(promLabels()...).Inc()
}

// PagesFailedGet returns the current value of the PagesFailed counter.
func PagesFailedGet() uint64 { return globalStats.PagesFailed.get() }

// ItemsPersistedIncr increments the ItemsPersisted counter by 1.
func ItemsPersistedIncr() {
	globalStats.ItemsPersisted.incr(1)
	globalStats.ItemsRate.Incr(1)
	globalPromStats.itemsPersisted.WithLabelValues(promLabels()...).Inc()
}

// ItemsPersistedGet returns the current value of the ItemsPersisted counter.
func ItemsPersistedGet() uint64 { return globalStats.ItemsPersisted.get() }

// ItemsSkippedIncr increments the ItemsSkipped counter by 1.
func ItemsSkippedIncr() {
	globalStats.ItemsSkipped.incr(1)
	globalPromStats.itemsSkipped.WithLabelValues(promLabels()...).Inc()
}

// ItemsSkippedGet returns the current value of the ItemsSkipped counter.
func ItemsSkippedGet() uint64 { return globalStats.ItemsSkipped.get() }

// ItemsErroredIncr increments the ItemsErrored counter by 1.
func ItemsErroredIncr() {
	globalStats.ItemsErrored.incr(1)
	globalPromStats.itemsErrored.WithLabelValues(promLabels()...).Inc()
}

// ItemsErroredGet returns the current value of the ItemsErrored counter.
func ItemsErroredGet() uint64 { return globalStats.ItemsErrored.get() }

// ItemsBannedIncr increments the ItemsBanned counter by 1.
func ItemsBannedIncr() {
	globalStats.ItemsBanned.incr(1)
	globalPromStats.itemsBanned.WithLabelValues(promLabels()...).Inc()
}

// ItemsBannedGet returns the current value of the ItemsBanned counter.
func ItemsBannedGet() uint64 { return globalStats.ItemsBanned.get() }

// BytesDownloadedAdd adds n to the BytesDownloaded counter.
func BytesDownloadedAdd(n uint64) {
	globalStats.BytesDownloaded.incr(n)
	globalStats.BytesRate.Incr(int64(n))
	globalPromStats.bytesDownloaded.WithLabelValues(promLabels()...).Add(float64(n))
}

// BytesDownloadedGet returns the current value of the BytesDownloaded counter.
func BytesDownloadedGet() uint64 { return globalStats.BytesDownloaded.get() }

// MetadataRoutinesIncr increments the MetadataRoutines gauge by 1.
func MetadataRoutinesIncr() { globalStats.MetadataRoutines.incr(1) }

// MetadataRoutinesDecr decrements the MetadataRoutines gauge by 1.
func MetadataRoutinesDecr() { globalStats.MetadataRoutines.decr(1) }

// DownloadRoutinesIncr increments the DownloadRoutines gauge by 1.
func DownloadRoutinesIncr() { globalStats.DownloadRoutines.incr(1) }

// DownloadRoutinesDecr decrements the DownloadRoutines gauge by 1.
func DownloadRoutinesDecr() { globalStats.DownloadRoutines.decr(1) }

// ValidateRoutinesIncr increments the ValidateRoutines gauge by 1.
func ValidateRoutinesIncr() { globalStats.ValidateRoutines.incr(1) }

// ValidateRoutinesDecr decrements the ValidateRoutines gauge by 1.
func ValidateRoutinesDecr() { globalStats.ValidateRoutines.decr(1) }

// PausedSet sets the Paused flag to true.
func PausedSet() { globalStats.Paused.Store(true) }

// PausedUnset sets the Paused flag to false.
func PausedUnset() { globalStats.Paused.Store(false) }

// PausedGet returns the current value of the Paused flag.
func PausedGet() bool { return globalStats.Paused.Load() }

// HTTPReturnCodesIncr increments the HTTPReturnCodes counter for the given key by 1.
func HTTPReturnCodesIncr(key string) {
	c, _ := globalStats.httpReturnCodes.LoadOrStore(key, &counter{})
	c.(*counter).incr(1)

	switch {
	case strings.HasPrefix(key, "2"):
		globalPromStats.http2xx.WithLabelValues(promLabels()...).Inc()
	case strings.HasPrefix(key, "3"):
		globalPromStats.http3xx.WithLabelValues(promLabels()...).Inc()
	case strings.HasPrefix(key, "4"):
		globalPromStats.http4xx.WithLabelValues(promLabels()...).Inc()
	case strings.HasPrefix(key, "5"):
		globalPromStats.http5xx.WithLabelValues(promLabels()...).Inc()
	}
}

// HTTPReturnCodesGet returns the current value of the HTTPReturnCodes counter for the given key.
func HTTPReturnCodesGet(key string) uint64 {
	if c, ok := globalStats.httpReturnCodes.Load(key); ok {
		return c.(*counter).get()
	}
	return 0
}
