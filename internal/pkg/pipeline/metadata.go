package pipeline

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/pkg/models"
)

const probeTimeout = 3 * time.Second

// variant suffixes in the site's naming scheme, best resolution first
var (
	variantSuffixes = []string{"_xxl", "_xl", "_l"}
	variantRegex    = regexp.MustCompile(`_(xxl|xl|l|m|s)(\.[a-zA-Z0-9]+)$`)
)

// stageMetadata fetches the photo page of one item, extracts its
// metadata, drops banned authors, and resolves the best download URL by
// probing resolution variants.
func (p *Pipeline) stageMetadata(ctx context.Context, item *models.Item) (*models.Item, error) {
	stats.MetadataRoutinesIncr()
	defer stats.MetadataRoutinesDecr()

	if err := ctx.Err(); err != nil {
		return item, err
	}

	if err := p.extractMetadata(ctx, item); err != nil {
		return item, err
	}

	banned, err := p.Store.IsAuthorBanned(ctx, item.Metadata.Author)
	if err == nil && banned {
		item.SetStatus(models.ItemBanned)
		return item, nil
	}

	item.DownloadURL = p.resolveDownloadURL(ctx, item)
	item.SetStatus(models.ItemMetadataOK)
	return item, nil
}

func (p *Pipeline) extractMetadata(ctx context.Context, item *models.Item) error {
	resp, done, err := p.Fetcher.Fetch(ctx, item.Ref.PageURL)
	if err != nil {
		return err
	}
	defer done()
	defer resp.Body.Close()

	meta, err := p.Parser.ParsePhotoPage(resp.Body, item.Ref.PageURL)
	if err != nil {
		return err
	}
	if meta.Title == "" && item.Ref.Caption != "" {
		meta.Title = item.Ref.Caption
	}

	item.Metadata = meta
	return nil
}

// resolveDownloadURL probes resolution variants of the image URL and
// returns the best one that exists, falling back to the URL the search
// page advertised.
func (p *Pipeline) resolveDownloadURL(ctx context.Context, item *models.Item) string {
	var candidates []string

	if item.Metadata != nil && item.Metadata.HighResURL != "" {
		candidates = append(candidates, item.Metadata.HighResURL)
	}
	for _, suffix := range variantSuffixes {
		if v := variantURL(item.Ref.ImageURL, suffix); v != "" && v != item.Ref.ImageURL {
			candidates = append(candidates, v)
		}
	}

	for _, candidate := range candidates {
		if p.probe(ctx, candidate) {
			return candidate
		}
	}

	return item.Ref.ImageURL
}

// variantURL rewrites the resolution suffix of an image URL, e.g.
// .../1234_abcd_l.jpg -> .../1234_abcd_xxl.jpg. Empty when the URL does
// not follow the variant naming scheme.
func variantURL(imageURL, suffix string) string {
	if !variantRegex.MatchString(imageURL) {
		return ""
	}
	return variantRegex.ReplaceAllString(imageURL, suffix+"$2")
}

// probe checks a candidate URL with a one-byte ranged GET on a short
// deadline. Probes bypass the retry policy: a variant that does not answer
// quickly is not worth waiting for.
func (p *Pipeline) probe(ctx context.Context, rawURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", p.Fetcher.UserAgent)
	req.Header.Set("Range", "bytes=0-0")

	session := p.Fetcher.Pool.Acquire()
	defer p.Fetcher.Pool.Release(session)

	resp, err := session.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent
}
