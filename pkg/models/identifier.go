package models

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

// imageIDRegex matches the hex token the site embeds in binary filenames,
// e.g. ".../12345678_abcdef0123456789_l.jpg" -> "abcdef0123456789".
var imageIDRegex = regexp.MustCompile(`^[0-9]+_([0-9a-f]+)(?:_[a-z]+)?$`)

// ExtractImageID returns the stable identifier embedded in an image URL.
// When the URL does not carry one, the identifier falls back to a hash of
// the URL itself so that deduplication still holds across restarts.
func ExtractImageID(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		base = strings.TrimSuffix(base, path.Ext(base))
		if m := imageIDRegex.FindStringSubmatch(base); m != nil {
			return m[1]
		}
	}

	return fmt.Sprintf("u%016x", xxh3.HashString(rawURL))
}
