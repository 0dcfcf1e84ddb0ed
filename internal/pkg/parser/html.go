package parser

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/internetarchive/Talos/pkg/models"
)

// HTMLParser is the goquery implementation of Parser for the current site
// markup.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// ParseSearchPage walks the share links on a search result page. Each
// share link carries the binary URL, the photo page URL and a caption as
// query parameters, each URL-encoded twice by the site's share widget.
func (p *HTMLParser) ParseSearchPage(body io.Reader) ([]models.ItemRef, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var refs []models.ItemRef
	seen := make(map[string]bool)

	doc.Find(`a[href*="share.php"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}

		u, err := url.Parse(href)
		if err != nil {
			return
		}

		q := u.Query()
		imageURL := doubleUnescape(q.Get("source"))
		pageURL := doubleUnescape(q.Get("clickthru"))
		if imageURL == "" || pageURL == "" {
			return
		}
		if seen[imageURL] {
			return
		}
		seen[imageURL] = true

		refs = append(refs, models.ItemRef{
			ImageURL: imageURL,
			PageURL:  pageURL,
			Caption:  doubleUnescape(q.Get("caption")),
		})
	})

	return refs, nil
}

// doubleUnescape undoes the share widget's double URL-encoding. A value
// that only decodes once is returned after the first pass.
func doubleUnescape(s string) string {
	once, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	twice, err := url.QueryUnescape(once)
	if err != nil {
		return once
	}
	return twice
}

func (p *HTMLParser) ParsePhotoPage(body io.Reader, pageURL string) (*models.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)

	meta := &models.Metadata{
		Title:       doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
		Description: doc.Find(`meta[property="og:description"]`).AttrOr("content", ""),
		HighResURL:  doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
		Author:      strings.TrimSpace(doc.Find("span.photo-author a").First().Text()),
		License:     strings.TrimSpace(doc.Find("span.photo-license a").First().Text()),
	}

	// EXIF table: one row per attribute, "th: label, td: value"
	doc.Find("table.exif tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(row.Find("th").Text()))
		value := strings.TrimSpace(row.Find("td").Text())
		if value == "" {
			return
		}

		switch label {
		case "make", "camera make":
			meta.CameraMake = value
		case "model", "camera model":
			meta.CameraModel = value
		case "focal length":
			meta.FocalLength = value
		case "aperture":
			meta.Aperture = value
		case "shutter speed", "exposure":
			meta.ShutterSpeed = value
		case "taken", "taken on":
			meta.TakenDate = value
		case "uploaded", "upload date":
			meta.UploadDate = value
		}
	})

	doc.Find("a.tag").Each(func(_ int, sel *goquery.Selection) {
		if tag := strings.TrimSpace(sel.Text()); tag != "" {
			meta.Tags = append(meta.Tags, tag)
		}
	})

	doc.Find("a.album-link").Each(func(_ int, sel *goquery.Selection) {
		if assoc, ok := association(sel, base); ok {
			meta.Albums = append(meta.Albums, assoc)
		}
	})

	doc.Find("a.collection-link").Each(func(_ int, sel *goquery.Selection) {
		if assoc, ok := association(sel, base); ok {
			meta.Collections = append(meta.Collections, assoc)
		}
	})

	return meta, nil
}

func association(sel *goquery.Selection, base *url.URL) (models.Association, bool) {
	href, ok := sel.Attr("href")
	if !ok {
		return models.Association{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return models.Association{}, false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	return models.Association{
		Name: strings.TrimSpace(sel.Text()),
		URL:  ref.String(),
	}, true
}
