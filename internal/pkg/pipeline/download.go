package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/internal/pkg/storage"
	"github.com/internetarchive/Talos/pkg/models"
)

// ErrTruncatedBody is returned when the bytes received differ from the
// Content-Length the server announced.
var ErrTruncatedBody = errors.New("pipeline: truncated response body")

// stageDownload streams one item's binary to its final path: lock the
// target, write to a temp file while hashing incrementally, verify the
// length, then rename into place. A crash mid-download leaves only a temp
// file and a stale lock, never a half-written final file. Losing the
// target lock to a concurrent worker is not an error, the item just ends
// as a duplicate skip.
func (p *Pipeline) stageDownload(ctx context.Context, item *models.Item) (*models.Item, error) {
	stats.DownloadRoutinesIncr()
	defer stats.DownloadRoutinesDecr()

	if err := ctx.Err(); err != nil {
		return item, err
	}

	if err := p.download(ctx, item); err != nil {
		if errors.Is(err, storage.ErrLocked) {
			item.SetStatus(models.ItemDedupedSkip)
			return item, nil
		}
		return item, err
	}

	item.SetStatus(models.ItemDownloadOK)
	return item, nil
}

func (p *Pipeline) download(ctx context.Context, item *models.Item) error {
	author := ""
	if item.Metadata != nil {
		author = item.Metadata.Author
	}

	target, err := p.Layout.NextPath(author, item.ImageID, extensionOf(item.DownloadURL))
	if err != nil {
		return err
	}

	lock, err := storage.AcquireLock(p.Layout.Fs(), target)
	if err != nil {
		return err
	}
	defer lock.Release()

	resp, done, err := p.Fetcher.Fetch(ctx, item.DownloadURL)
	if err != nil {
		return err
	}
	defer done()
	defer resp.Body.Close()

	fs := p.Layout.Fs()
	tmpPath := target + ".tmp"

	tmp, err := fs.Create(tmpPath)
	if err != nil {
		return err
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fs.Remove(tmpPath)
		return err
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		fs.Remove(tmpPath)
		return fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedBody, written, resp.ContentLength)
	}

	if err := fs.Rename(tmpPath, target); err != nil {
		fs.Remove(tmpPath)
		return err
	}

	item.LocalPath = target
	item.Digest = hex.EncodeToString(hasher.Sum(nil))
	item.Bytes = written

	stats.BytesDownloadedAdd(uint64(written))

	return nil
}

// extensionOf pulls a sane file extension out of a download URL.
func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "jpg"
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff":
		return ext
	default:
		return "jpg"
	}
}
