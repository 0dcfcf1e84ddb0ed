package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/internetarchive/Talos/internal/pkg/seencheck"
	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/pkg/models"
)

// stagePersist re-hashes the downloaded file from disk and, when the
// digest matches what the download stage computed, writes the durable
// record in one transaction. Validation failures remove the file so the
// item can be re-attempted by a later pass.
func (p *Pipeline) stagePersist(ctx context.Context, item *models.Item) (*models.Item, error) {
	stats.ValidateRoutinesIncr()
	defer stats.ValidateRoutinesDecr()

	if err := ctx.Err(); err != nil {
		return item, err
	}

	if err := p.validate(item); err != nil {
		p.Layout.Fs().Remove(item.LocalPath)
		return item, err
	}

	if err := p.persist(ctx, item); err != nil {
		// no record means the file would be orphaned
		p.Layout.Fs().Remove(item.LocalPath)
		return item, err
	}

	item.SetStatus(models.ItemPersisted)
	return item, nil
}

func (p *Pipeline) validate(item *models.Item) error {
	f, err := p.Layout.Fs().Open(item.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return err
	}

	if n != item.Bytes {
		return fmt.Errorf("size mismatch on disk: got %d, want %d", n, item.Bytes)
	}

	if digest := hex.EncodeToString(hasher.Sum(nil)); digest != item.Digest {
		return fmt.Errorf("digest mismatch on disk: got %s, want %s", digest, item.Digest)
	}

	return nil
}

func (p *Pipeline) persist(ctx context.Context, item *models.Item) error {
	rec := &models.Record{
		URL:       item.DownloadURL,
		ImageID:   item.ImageID,
		PageURL:   item.Ref.PageURL,
		LocalPath: item.LocalPath,
		Digest:    item.Digest,
		Bytes:     item.Bytes,
		Metadata:  item.Metadata,
		SavedAt:   time.Now(),
	}

	if _, err := p.Store.SaveRecord(ctx, rec); err != nil {
		return err
	}

	if p.UseSeencheck {
		seencheck.MarkSeen(item.ImageID, item.Digest)
	}

	return nil
}
