package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/goleak"

	"github.com/internetarchive/Talos/internal/pkg/fetcher"
	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/parser"
	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/internal/pkg/storage"
	"github.com/internetarchive/Talos/internal/pkg/store"
	"github.com/internetarchive/Talos/pkg/models"
)

// stubParser returns canned metadata keyed by the author encoded in the
// page URL path, e.g. /alice/image/1 -> author alice.
type stubParser struct{}

func (stubParser) ParseSearchPage(io.Reader) ([]models.ItemRef, error) {
	return nil, nil
}

func (stubParser) ParsePhotoPage(body io.Reader, pageURL string) (*models.Metadata, error) {
	io.Copy(io.Discard, body)

	author := "alice"
	if parts := strings.Split(strings.Trim(pageURL, "/"), "/"); len(parts) >= 3 {
		author = parts[len(parts)-3]
	}

	return &models.Metadata{
		Title:  "title",
		Author: author,
		Tags:   []string{"test"},
	}, nil
}

var _ parser.Parser = stubParser{}

type testEnv struct {
	pipeline *Pipeline
	store    *store.Store
	fs       afero.Fs
	server   *httptest.Server
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()
	log.Start()
	if err := stats.Init(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	pool := fetcher.NewSessionPool(4, nil, nil)
	t.Cleanup(pool.Close)

	f := &fetcher.Fetcher{
		Pool:           pool,
		MaxRetry:       1,
		UserAgent:      "test-agent",
		RetryBase:      time.Millisecond,
		TimeoutBackoff: time.Millisecond,
		RateBackoff:    time.Millisecond,
	}

	fs := afero.NewMemMapFs()

	return &testEnv{
		pipeline: &Pipeline{
			Fetcher:         f,
			Store:           s,
			Layout:          storage.NewLayout(fs, "/archive", 1000),
			Parser:          stubParser{},
			MetadataWorkers: 2,
		},
		store:  s,
		fs:     fs,
		server: srv,
	}
}

// photoSiteHandler serves /<author>/image/<id> pages and /img/<name> binaries.
func photoSiteHandler(images map[string][]byte) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/img/")
		data, ok := images[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>photo page</body></html>"))
	})
	return mux
}

// TestMain verifies that no stage worker outlives its batch.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunBatchPersists(t *testing.T) {
	images := map[string][]byte{
		"100_aaa.jpg": []byte("first image bytes"),
		"200_bbb.jpg": []byte("second image bytes"),
	}
	env := newTestEnv(t, photoSiteHandler(images))

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/100_aaa.jpg", PageURL: env.server.URL + "/alice/image/100-aaa"},
		{ImageURL: env.server.URL + "/img/200_bbb.jpg", PageURL: env.server.URL + "/bob/image/200-bbb"},
	}

	result := env.pipeline.RunBatch(context.Background(), refs, 2)

	if result.Fatal != nil {
		t.Fatalf("Fatal = %v", result.Fatal)
	}
	if result.Persisted != 2 || result.Errored != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 persisted", result)
	}

	wantBytes := int64(len(images["100_aaa.jpg"]) + len(images["200_bbb.jpg"]))
	if result.Bytes != wantBytes {
		t.Errorf("Bytes = %d, want %d", result.Bytes, wantBytes)
	}

	saved, err := env.store.IsImageSaved(context.Background(), "aaa")
	if err != nil || !saved {
		t.Errorf("IsImageSaved(aaa) = %v, %v", saved, err)
	}

	// files landed under the author directories
	matches, _ := afero.Glob(env.fs, "/archive/alice/0001/aaa_*.jpg")
	if len(matches) != 1 {
		t.Errorf("alice files = %v", matches)
	}
}

func TestRunBatchDedupIdempotent(t *testing.T) {
	images := map[string][]byte{"100_aaa.jpg": []byte("image")}
	env := newTestEnv(t, photoSiteHandler(images))

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/100_aaa.jpg", PageURL: env.server.URL + "/alice/image/100-aaa"},
	}

	first := env.pipeline.RunBatch(context.Background(), refs, 1)
	if first.Persisted != 1 {
		t.Fatalf("first batch = %+v", first)
	}

	second := env.pipeline.RunBatch(context.Background(), refs, 1)
	if second.Skipped != 1 || second.Persisted != 0 {
		t.Errorf("second batch = %+v, want 1 skipped", second)
	}
}

func TestRunBatchBannedAuthor(t *testing.T) {
	var imageHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		imageHits++
		w.Write([]byte("bytes"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	env := newTestEnv(t, mux)
	if err := env.store.BanAuthor(context.Background(), "mallory", "test"); err != nil {
		t.Fatal(err)
	}

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/1_a.jpg", PageURL: env.server.URL + "/mallory/image/1-a"},
	}

	result := env.pipeline.RunBatch(context.Background(), refs, 1)
	if result.Banned != 1 || result.Persisted != 0 {
		t.Fatalf("result = %+v, want 1 banned", result)
	}
	if imageHits != 0 {
		t.Errorf("banned author's image was downloaded %d times", imageHits)
	}
}

func TestRunBatchDownloadError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	env := newTestEnv(t, mux)

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/1_a.jpg", PageURL: env.server.URL + "/alice/image/1-a"},
	}

	result := env.pipeline.RunBatch(context.Background(), refs, 1)
	if result.Errored != 1 || result.Persisted != 0 {
		t.Fatalf("result = %+v, want 1 errored", result)
	}

	// no stray files or temp files left behind
	matches, _ := afero.Glob(env.fs, "/archive/alice/0001/*")
	for _, m := range matches {
		if !strings.HasSuffix(m, ".lock") {
			t.Errorf("leftover file %s", m)
		}
	}
}

func TestRunBatchTruncatedDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		// declare more bytes than are actually sent
		w.Header().Set("Content-Length", "1000000")
		w.Write(make([]byte, 999000))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	env := newTestEnv(t, mux)

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/1_a.jpg", PageURL: env.server.URL + "/alice/image/1-a"},
	}

	result := env.pipeline.RunBatch(context.Background(), refs, 1)
	if result.Errored != 1 || result.Persisted != 0 {
		t.Fatalf("result = %+v, want 1 errored", result)
	}

	saved, err := env.store.IsImageSaved(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if saved {
		t.Error("truncated download was recorded")
	}

	matches, _ := afero.Glob(env.fs, "/archive/alice/0001/*")
	for _, m := range matches {
		if !strings.HasSuffix(m, ".lock") {
			t.Errorf("leftover file %s", m)
		}
	}
}

func TestRunBatchFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	env := newTestEnv(t, mux)

	refs := []models.ItemRef{
		{ImageURL: env.server.URL + "/img/1_a.jpg", PageURL: env.server.URL + "/alice/image/1-a"},
	}

	result := env.pipeline.RunBatch(context.Background(), refs, 1)
	if !errors.Is(result.Fatal, fetcher.ErrFatalHTTP) {
		t.Fatalf("Fatal = %v, want ErrFatalHTTP", result.Fatal)
	}
}

func TestStagePersistFailureRemovesFile(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler())

	data := []byte("image bytes")
	target := "/archive/alice/0001/aaa_1.jpg"
	if err := afero.WriteFile(env.fs, target, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sum := sha256.Sum256(data)
	item := models.NewItem(models.ItemRef{ImageURL: "http://site/img/1_aaa.jpg", PageURL: "http://site/alice/image/1-aaa"})
	item.ImageID = "aaa"
	item.LocalPath = target
	item.Digest = hex.EncodeToString(sum[:])
	item.Bytes = int64(len(data))
	item.Metadata = &models.Metadata{Author: "alice"}

	// a closed store makes the record write fail after validation passed
	env.store.Close()

	if _, err := env.pipeline.stagePersist(context.Background(), item); err == nil {
		t.Fatal("expected an error from the record write")
	}

	if exists, _ := afero.Exists(env.fs, target); exists {
		t.Error("failed record write left the downloaded file on disk")
	}
}

func TestVariantURL(t *testing.T) {
	tests := []struct {
		url    string
		suffix string
		want   string
	}{
		{"https://img.example.com/27/1234_abcd_l.jpg", "_xxl", "https://img.example.com/27/1234_abcd_xxl.jpg"},
		{"https://img.example.com/27/1234_abcd_m.png", "_xl", "https://img.example.com/27/1234_abcd_xl.png"},
		{"https://img.example.com/27/1234_abcd.jpg", "_xxl", ""},
	}

	for _, tt := range tests {
		if got := variantURL(tt.url, tt.suffix); got != tt.want {
			t.Errorf("variantURL(%q, %q) = %q, want %q", tt.url, tt.suffix, got, tt.want)
		}
	}
}
