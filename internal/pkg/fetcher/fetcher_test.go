package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/stats"
)

func testFetcher(t *testing.T, poolSize int) *Fetcher {
	t.Helper()
	log.Start()
	if err := stats.Init(); err != nil {
		t.Fatal(err)
	}

	pool := NewSessionPool(poolSize, nil, nil)
	return &Fetcher{
		Pool:           pool,
		MaxRetry:       3,
		UserAgent:      "test-agent",
		RetryBase:      time.Millisecond,
		TimeoutBackoff: time.Millisecond,
		RateBackoff:    time.Millisecond,
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	resp, done, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	done()

	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}
}

func TestFetchPermanentNoRetry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrPermanentHTTP) {
		t.Fatalf("Fetch() error = %v, want ErrPermanentHTTP", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want exactly 1", hits.Load())
	}
}

func TestFetchTransientThenSuccess(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	resp, done, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()
	done()

	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
}

func TestFetchRateLimitClears(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	resp, done, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()
	done()
}

func TestFetchRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Fetch() error = %v, want ErrRetriesExhausted", err)
	}

	// the session must be back in the pool
	s := f.Pool.Acquire()
	f.Pool.Release(s)
}

func TestFetchFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	f := testFetcher(t, 1)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrFatalHTTP) {
		t.Fatalf("Fetch() error = %v, want ErrFatalHTTP", err)
	}
}

func TestFetchContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := testFetcher(t, 1)
	f.RetryBase = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := f.Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestFetchTimeoutScalesWithAttempt(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			time.Sleep(120 * time.Millisecond)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t, 1)
	f.Timeout = 80 * time.Millisecond

	// the first attempt's 80ms deadline cuts off the slow response, the
	// second attempt runs with 160ms and clears
	resp, done, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()
	done()

	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestFetchAttemptOffsetExtendsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t, 1)
	f.Timeout = 80 * time.Millisecond
	f.MaxRetry = 0

	if _, _, err := f.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Fetch() error = %v, want retries exhausted", err)
	}

	// two accumulated attempts stretch the deadline to 240ms, enough for
	// the 200ms response
	resp, done, err := f.FetchAttempt(context.Background(), srv.URL, 2)
	if err != nil {
		t.Fatalf("FetchAttempt() error = %v", err)
	}
	resp.Body.Close()
	done()
}

func TestSessionPoolDiscardRefills(t *testing.T) {
	log.Start()
	pool := NewSessionPool(2, nil, nil)

	s1 := pool.Acquire()
	pool.Discard(s1)

	s2 := pool.Acquire()
	if s2 == s1 {
		t.Error("Discard returned the poisoned session to the pool")
	}
	pool.Release(s2)

	if pool.Size() != 2 {
		t.Errorf("Size() = %d, want 2", pool.Size())
	}
}
