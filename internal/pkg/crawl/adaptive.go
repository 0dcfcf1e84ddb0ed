package crawl

import "sync"

const (
	failuresBeforeHalve = 3
	successesBeforeGrow = 5
)

// AdaptiveController tunes the download worker count between batches from
// page-level outcomes: consecutive failures halve it, sustained successes
// grow it back one at a time, always within [1, configured].
type AdaptiveController struct {
	mu         sync.Mutex
	current    int
	configured int
	consecFail int
	consecOK   int
}

func NewAdaptiveController(configured int) *AdaptiveController {
	if configured < 1 {
		configured = 1
	}
	return &AdaptiveController{
		current:    configured,
		configured: configured,
	}
}

// Workers returns the download concurrency for the next batch.
func (a *AdaptiveController) Workers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// RecordFailure notes a failed page. The third consecutive failure halves
// the worker count.
func (a *AdaptiveController) RecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecOK = 0
	a.consecFail++

	if a.consecFail >= failuresBeforeHalve {
		a.consecFail = 0
		a.current /= 2
		if a.current < 1 {
			a.current = 1
		}
	}
}

// RecordSuccess notes a successful page. The fifth consecutive success
// grows the worker count by one, up to the configured maximum.
func (a *AdaptiveController) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecFail = 0
	a.consecOK++

	if a.consecOK >= successesBeforeGrow {
		a.consecOK = 0
		if a.current < a.configured {
			a.current++
		}
	}
}
