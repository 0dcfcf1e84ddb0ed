package models

import "time"

// PageProgress is the durable record of one fully processed search page.
// A page with ImageCount > 0 is skipped on restart; a missing record or a
// zero count leaves the page eligible for (re)processing.
type PageProgress struct {
	PageNumber     int
	CompletionDate time.Time
	ImageCount     int
	TotalBytes     int64
}

// FailedPageStatus qualifies the retry state of a failed page
type FailedPageStatus string

const (
	FailedPagePending FailedPageStatus = "pending"
	FailedPageRetried FailedPageStatus = "retried"
	FailedPageSuccess FailedPageStatus = "success"
	// FailedPageFailed is terminal, reached once the attempt bound is
	// exhausted; it requires manual intervention.
	FailedPageFailed FailedPageStatus = "failed"
)

// FailedPage is the durable record of a page whose fetch or batch errored.
type FailedPage struct {
	PageNumber int
	Error      string
	Attempts   int
	Status     FailedPageStatus
}
