package models

import "time"

// RunState is a step of the crawl state machine.
type RunState string

const (
	StateIdle                  RunState = "idle"
	StateEnumeratingCategories RunState = "enumerating_categories"
	StateCollectingURLs        RunState = "collecting_urls"
	StateFetchingItems         RunState = "fetching_items"
	StateDone                  RunState = "done"
	StateAborted               RunState = "aborted"
)

// CrawlRun summarises one full crawl. It is used for logging and metrics only.
type CrawlRun struct {
	ID             string
	State          RunState
	StartedAt      time.Time
	FinishedAt     time.Time
	Categories     int
	URLsEnumerated int
	ItemsInserted  int
	ItemsExisting  int
	FetchFailures  int
	StoreFailures  int
	FailedURLs     []string
	ErrorsByType   map[string]int
	RetryCount     int
	Err            error
}

// Duration reports how long the run took, or zero if it has not finished.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Fatal reports whether the run was aborted.
func (r *CrawlRun) Fatal() bool {
	return r.State == StateAborted
}
