// Package httpds downloads listing exports over HTTP.
//
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff, or after the server's Retry-After delay when it sends one. The
// context bounds both requests and waits.
package httpds

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// accept lists the table encodings the loader understands, preferred first.
var accept = strings.Join([]string{
	"text/csv",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/html;q=0.8",
	"*/*;q=0.1",
}, ", ")

// Config configures the download client. Zero values get defaults: 30s
// timeout, 200ms initial backoff, 5s maximum backoff.
type Config struct {
	Timeout time.Duration
	// MaxRetries counts attempts after the first; zero disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// UserAgent, when set, is sent with every request.
	UserAgent string
	// Transport replaces http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client fetches URLs with retry.
type Client struct {
	http       *http.Client
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	log        *zap.Logger

	// wait blocks for a backoff interval; tests replace it.
	wait func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		retries:    max(cfg.MaxRetries, 0),
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		userAgent:  cfg.UserAgent,
		log:        log,
		wait:       sleep,
	}
}

// Get downloads url. A response with a final status (anything but 429 and
// 5xx) is returned as is; the caller closes its body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if url == "" {
		return nil, errors.New("httpds: empty url")
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "httpds: build request")
		}
		req.Header.Set("Accept", accept)
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		delay := backoffDuration(c.backoff, attempt, c.maxBackoff)
		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case !isRetryableStatus(resp.StatusCode):
			return resp, nil
		default:
			if d, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				delay = min(d, c.maxBackoff)
			}
			_ = resp.Body.Close()
			lastErr = errors.Newf("httpds: retryable status %d from %s", resp.StatusCode, url)
		}

		if attempt >= c.retries {
			return nil, lastErr
		}
		c.log.Debug("retrying download",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))
		if err := c.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoffDuration is initial doubled once per previous retry, capped at limit.
func backoffDuration(initial time.Duration, attempt int, limit time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	return max(t.Sub(now), 0), true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
