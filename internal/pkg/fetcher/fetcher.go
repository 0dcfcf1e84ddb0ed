package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/stats"
)

var (
	// ErrRetriesExhausted is returned when a transient failure survived
	// every allowed attempt.
	ErrRetriesExhausted = errors.New("fetcher: retries exhausted")

	// ErrPermanentHTTP is returned for statuses that will never succeed on
	// retry, e.g. 403 and 404.
	ErrPermanentHTTP = errors.New("fetcher: permanent HTTP error")

	// ErrFatalHTTP is returned for statuses that indicate the remote side
	// wants the whole crawl to back off, e.g. 507. The supervisor treats it
	// as a restart trigger.
	ErrFatalHTTP = errors.New("fetcher: fatal HTTP error")
)

type statusAction int

const (
	actOK statusAction = iota
	actRetry        // 5xx transient, progressive backoff
	actRetryTimeout // 408, long backoff and a fresh session
	actRetryRate    // 429, longest backoff
	actPermanent    // 4xx that will never clear
	actFatal        // 507, stop the run
)

func classifyStatus(code int) statusAction {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		http.StatusLoopDetected, 509:
		return actRetry
	case http.StatusRequestTimeout:
		return actRetryTimeout
	case http.StatusTooManyRequests:
		return actRetryRate
	case http.StatusBadRequest, http.StatusUnauthorized,
		http.StatusForbidden, http.StatusNotFound:
		return actPermanent
	case http.StatusInsufficientStorage:
		return actFatal
	default:
		if code >= 200 && code < 400 {
			return actOK
		}
		return actRetry
	}
}

// Fetcher performs GETs through the session pool with status-aware retries.
type Fetcher struct {
	Pool      *SessionPool
	MaxRetry  int
	UserAgent string

	// Timeout bounds a single attempt; it grows with the attempt number so
	// later attempts get more room. Zero disables the deadline.
	Timeout time.Duration

	// Backoff bases, overridable in tests.
	RetryBase      time.Duration
	TimeoutBackoff time.Duration
	RateBackoff    time.Duration

	logger *log.FieldedLogger
}

func New(pool *SessionPool, cfg *config.Config) *Fetcher {
	return &Fetcher{
		Pool:           pool,
		MaxRetry:       cfg.MaxRetry,
		UserAgent:      cfg.UserAgent,
		Timeout:        time.Duration(cfg.HTTPTimeout) * time.Second,
		RetryBase:      2 * time.Second,
		TimeoutBackoff: 5 * time.Minute,
		RateBackoff:    10 * time.Minute,
		logger: log.NewFieldedLogger(&log.Fields{
			"component": "fetcher",
		}),
	}
}

// attemptCtx derives the deadline for one attempt: Timeout scaled by the
// attempt number. The returned cancel must run once the attempt's body is
// fully consumed, not when the attempt returns, since the deadline covers
// the body read too.
func (f *Fetcher) attemptCtx(ctx context.Context, attempt int) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(attempt+1)*f.Timeout)
}

// Fetch GETs rawURL with the retry policy. On success the response body is
// open and the caller MUST invoke done() once finished with it; done
// returns the underlying session to the pool. On error no body is open and
// done is nil.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (resp *http.Response, done func(), err error) {
	return f.FetchAttempt(ctx, rawURL, 0)
}

// FetchAttempt is Fetch starting from an accumulated attempt count, so a
// retry pass over previously failed work resumes with the longer timeouts
// and backoffs those attempts already earned.
func (f *Fetcher) FetchAttempt(ctx context.Context, rawURL string, attemptOffset int) (resp *http.Response, done func(), err error) {
	if attemptOffset < 0 {
		attemptOffset = 0
	}

	session := f.Pool.Acquire()

	var lastErr error
	for retry := 0; retry <= f.MaxRetry; retry++ {
		attempt := attemptOffset + retry

		if retry > 0 {
			if !sleepCtx(ctx, time.Duration(attempt)*f.RetryBase) {
				f.Pool.Release(session)
				return nil, nil, ctx.Err()
			}
		}

		attemptCtx, cancel := f.attemptCtx(ctx, attempt)

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			cancel()
			f.Pool.Release(session)
			return nil, nil, err
		}
		req.Header.Set("User-Agent", f.UserAgent)

		resp, err := session.Client.Do(req)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				f.Pool.Discard(session)
				return nil, nil, ctx.Err()
			}

			// transport-level failure or attempt deadline poisons the
			// session
			f.logger.Warn("transport error, discarding session", "url", rawURL, "attempt", attempt, "err", err.Error())
			f.Pool.Discard(session)
			session = f.Pool.Acquire()
			lastErr = err
			continue
		}

		stats.HTTPReturnCodesIncr(fmt.Sprintf("%d", resp.StatusCode))

		switch classifyStatus(resp.StatusCode) {
		case actOK:
			s := session
			c := cancel
			return resp, func() { c(); f.Pool.Release(s) }, nil

		case actRetry:
			resp.Body.Close()
			cancel()
			f.logger.Warn("transient HTTP error", "url", rawURL, "status", resp.StatusCode, "attempt", attempt)
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		case actRetryTimeout:
			resp.Body.Close()
			cancel()
			f.logger.Warn("request timeout, backing off with a fresh session", "url", rawURL, "attempt", attempt)
			f.Pool.Discard(session)
			if !sleepCtx(ctx, time.Duration(attempt+1)*f.TimeoutBackoff) {
				return nil, nil, ctx.Err()
			}
			session = f.Pool.Acquire()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		case actRetryRate:
			resp.Body.Close()
			cancel()
			f.logger.Warn("rate limited, backing off", "url", rawURL, "attempt", attempt)
			if !sleepCtx(ctx, time.Duration(attempt+1)*f.RateBackoff) {
				f.Pool.Release(session)
				return nil, nil, ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		case actPermanent:
			resp.Body.Close()
			cancel()
			f.Pool.Release(session)
			return nil, nil, fmt.Errorf("%w: %d on %s", ErrPermanentHTTP, resp.StatusCode, rawURL)

		case actFatal:
			resp.Body.Close()
			cancel()
			f.Pool.Release(session)
			return nil, nil, fmt.Errorf("%w: %d on %s", ErrFatalHTTP, resp.StatusCode, rawURL)
		}
	}

	f.Pool.Release(session)
	return nil, nil, fmt.Errorf("%w: %s (last: %v)", ErrRetriesExhausted, rawURL, lastErr)
}

// sleepCtx sleeps for d unless the context ends first, in which case it
// returns false.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
