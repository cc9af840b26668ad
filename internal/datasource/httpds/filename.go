package httpds

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"

	"github.com/zeebo/xxh3"
)

// filenameCleaner replaces sequences of non-alphanumeric characters with "_".
var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// HashString returns a stable hex digest of s for names without a natural key.
func HashString(s string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(s))
}

// SafeFilenameFromURL derives a filesystem-safe name from a raw URL. It uses
// the cleaned query string, falling back to a hash of the URL when the URL
// does not parse or has no usable query.
func SafeFilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return HashString(rawURL)
	}
	clean := filenameCleaner.ReplaceAllString(u.RawQuery, "_")
	if clean == "" {
		return HashString(rawURL)
	}
	return clean
}

// FilenameFor picks the filename of a download: the Content-Disposition
// filename when present, else the last URL path segment when it has an
// extension, else SafeFilenameFromURL.
func FilenameFor(rawURL, contentDisposition string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if fn := path.Base(params["filename"]); fn != "" && fn != "." && fn != "/" {
				return fn
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); path.Ext(base) != "" {
			return base
		}
	}
	return SafeFilenameFromURL(rawURL)
}
