package parser

import (
	"net/url"
	"strings"
	"testing"
)

func twiceEscaped(s string) string {
	return url.QueryEscape(url.QueryEscape(s))
}

func TestParseSearchPage(t *testing.T) {
	page := `<html><body>
		<div class="result">
			<a href="/share.php?source=` + twiceEscaped("https://img.example.com/27/1234_deadbeef_l.jpg") +
		`&clickthru=` + twiceEscaped("https://example.com/alice/image/1234-deadbeef") +
		`&caption=` + twiceEscaped("A sunset") + `">share</a>
		</div>
		<div class="result">
			<a href="/share.php?source=` + twiceEscaped("https://img.example.com/27/1234_deadbeef_l.jpg") +
		`&clickthru=` + twiceEscaped("https://example.com/alice/image/1234-deadbeef") + `">dup</a>
		</div>
		<div class="result">
			<a href="/share.php?source=` + twiceEscaped("https://img.example.com/31/99_cafe_l.jpg") +
		`&clickthru=` + twiceEscaped("https://example.com/bob/image/99-cafe") + `">share</a>
		</div>
		<a href="/help">not a share link</a>
	</body></html>`

	p := NewHTMLParser()
	refs, err := p.ParseSearchPage(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseSearchPage() error = %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2 (duplicates collapsed)", len(refs))
	}

	if refs[0].ImageURL != "https://img.example.com/27/1234_deadbeef_l.jpg" {
		t.Errorf("ImageURL = %q", refs[0].ImageURL)
	}
	if refs[0].PageURL != "https://example.com/alice/image/1234-deadbeef" {
		t.Errorf("PageURL = %q", refs[0].PageURL)
	}
	if refs[0].Caption != "A sunset" {
		t.Errorf("Caption = %q", refs[0].Caption)
	}
}

func TestParseSearchPageEmpty(t *testing.T) {
	p := NewHTMLParser()
	refs, err := p.ParseSearchPage(strings.NewReader("<html><body>no results</body></html>"))
	if err != nil {
		t.Fatalf("ParseSearchPage() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("got %d refs, want 0", len(refs))
	}
}

func TestParsePhotoPage(t *testing.T) {
	page := `<html><head>
		<meta property="og:title" content="Sunset over the lake">
		<meta property="og:description" content="Evening shot">
		<meta property="og:image" content="https://img.example.com/27/1234_deadbeef_xxl.jpg">
	</head><body>
		<span class="photo-author"><a href="/alice">alice</a></span>
		<span class="photo-license"><a href="/license/cc">CC BY-NC-ND</a></span>
		<table class="exif">
			<tr><th>Make</th><td>Canon</td></tr>
			<tr><th>Model</th><td>EOS 5D</td></tr>
			<tr><th>Focal length</th><td>50 mm</td></tr>
			<tr><th>Aperture</th><td>f/1.8</td></tr>
			<tr><th>Taken</th><td>2011-06-01</td></tr>
			<tr><th>Uploaded</th><td>2011-06-02</td></tr>
			<tr><th>Flash</th><td></td></tr>
		</table>
		<a class="tag" href="/t/sunset">sunset</a>
		<a class="tag" href="/t/lake">lake</a>
		<a class="album-link" href="/alice/album/12">Landscapes</a>
		<a class="collection-link" href="https://example.com/collection/4">Editors picks</a>
	</body></html>`

	p := NewHTMLParser()
	meta, err := p.ParsePhotoPage(strings.NewReader(page), "https://example.com/alice/image/1234-deadbeef")
	if err != nil {
		t.Fatalf("ParsePhotoPage() error = %v", err)
	}

	if meta.Title != "Sunset over the lake" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Author != "alice" {
		t.Errorf("Author = %q", meta.Author)
	}
	if meta.License != "CC BY-NC-ND" {
		t.Errorf("License = %q", meta.License)
	}
	if meta.HighResURL != "https://img.example.com/27/1234_deadbeef_xxl.jpg" {
		t.Errorf("HighResURL = %q", meta.HighResURL)
	}
	if meta.CameraMake != "Canon" || meta.CameraModel != "EOS 5D" {
		t.Errorf("camera = %q %q", meta.CameraMake, meta.CameraModel)
	}
	if meta.Aperture != "f/1.8" || meta.FocalLength != "50 mm" {
		t.Errorf("exif = %q %q", meta.Aperture, meta.FocalLength)
	}
	if meta.TakenDate != "2011-06-01" || meta.UploadDate != "2011-06-02" {
		t.Errorf("dates = %q %q", meta.TakenDate, meta.UploadDate)
	}

	if len(meta.Tags) != 2 || meta.Tags[0] != "sunset" {
		t.Errorf("Tags = %v", meta.Tags)
	}

	if len(meta.Albums) != 1 {
		t.Fatalf("Albums = %v", meta.Albums)
	}
	if meta.Albums[0].URL != "https://example.com/alice/album/12" {
		t.Errorf("album URL not resolved: %q", meta.Albums[0].URL)
	}

	if len(meta.Collections) != 1 || meta.Collections[0].Name != "Editors picks" {
		t.Errorf("Collections = %v", meta.Collections)
	}
}
