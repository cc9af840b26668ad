package httpds

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"propetl/internal/datasource"
)

// ErrStatus marks a final non-2xx response.
var ErrStatus = errors.New("unexpected HTTP status")

// URL is a datasource.Source that downloads one URL with the client.
type URL struct {
	client   *Client
	url      string
	maxBytes int64
}

var _ datasource.Source = (*URL)(nil)

// NewURL returns a source for rawURL. maxBytes <= 0 disables the size cap.
func NewURL(c *Client, rawURL string, maxBytes int64) *URL {
	return &URL{client: c, url: rawURL, maxBytes: maxBytes}
}

// Name returns the URL.
func (u *URL) Name() string { return u.url }

// Fetch GETs the URL and reads the body. The filename comes from
// Content-Disposition or the URL (see FilenameFor); the content type is the
// response Content-Type header.
func (u *URL) Fetch(ctx context.Context) (datasource.Blob, error) {
	resp, err := u.client.Get(ctx, u.url)
	if err != nil {
		return datasource.Blob{}, errors.Wrapf(err, "fetch %s", u.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return datasource.Blob{}, errors.Wrapf(ErrStatus, "fetch %s: %s", u.url, resp.Status)
	}
	data, err := datasource.ReadAll(resp.Body, u.maxBytes)
	if err != nil {
		return datasource.Blob{}, errors.Wrapf(err, "read %s", u.url)
	}
	return datasource.Blob{
		Data:        data,
		Filename:    FilenameFor(u.url, resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// IsURL reports whether target looks like an http(s) URL.
func IsURL(target string) bool {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	return (req.URL.Scheme == "http" || req.URL.Scheme == "https") && req.URL.Host != ""
}
