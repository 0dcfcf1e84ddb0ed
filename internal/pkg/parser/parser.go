// Package parser extracts structured data out of the photo site's HTML:
// image references from search result pages and full metadata from photo
// pages. The pipeline only depends on the Parser interface, so a site
// redesign means swapping the implementation, not the pipeline.
package parser

import (
	"io"

	"github.com/internetarchive/Talos/pkg/models"
)

type Parser interface {
	// ParseSearchPage extracts every image reference found on one search
	// result page. An empty slice with a nil error is a legitimate result
	// (e.g. the last page of a search).
	ParseSearchPage(body io.Reader) ([]models.ItemRef, error)

	// ParsePhotoPage extracts the metadata block from a photo page.
	// pageURL resolves relative links found in the document.
	ParsePhotoPage(body io.Reader, pageURL string) (*models.Metadata, error)
}
