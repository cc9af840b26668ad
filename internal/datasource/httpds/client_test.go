package httpds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestClient returns a client whose backoff waits are recorded, not slept.
func newTestClient(t *testing.T, cfg Config) (*Client, *[]time.Duration) {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	c := NewClient(cfg)
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return c, &waits
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{MaxRetries: -1})
	assert.Equal(t, 30*time.Second, c.http.Timeout)
	assert.Zero(t, c.retries)
	assert.Equal(t, 200*time.Millisecond, c.backoff)
	assert.Equal(t, 5*time.Second, c.maxBackoff)
}

func TestGet_SendsListingHeaders(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "propetl", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/csv")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, Config{MaxRetries: 3, UserAgent: "propetl"})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Empty(t, *waits)
}

func TestGet_RetryOn5xxThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, *waits)
}

func TestGet_HonorsRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, Config{MaxRetries: 1, InitialBackoff: time.Millisecond})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
}

func TestGet_StopsAfterMaxRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, waits := newTestClient(t, Config{MaxRetries: 2})
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retryable status 503")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Len(t, *waits, 2)
}

func TestGet_FinalStatusNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, Config{MaxRetries: 5})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGet_EmptyURLAndCanceled(t *testing.T) {
	_, err := NewClient(Config{}).Get(context.Background(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewClient(Config{}).Get(ctx, "http://x.test")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		initial time.Duration
		attempt int
		limit   time.Duration
		want    time.Duration
	}{
		{100 * time.Millisecond, 0, time.Second, 100 * time.Millisecond},
		{100 * time.Millisecond, 1, time.Second, 200 * time.Millisecond},
		{100 * time.Millisecond, 2, time.Second, 400 * time.Millisecond},
		{600 * time.Millisecond, 1, time.Second, time.Second},
		{2 * time.Second, 0, time.Second, time.Second},
		{time.Second, 80, 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/attempt=%d", tt.initial, tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, backoffDuration(tt.initial, tt.attempt, tt.limit))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	d, ok := retryAfter(" 7 ", now)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	d, ok = retryAfter(now.Add(3*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	d, ok = retryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Zero(t, d)

	for _, v := range []string{"", "-1", "soon"} {
		_, ok := retryAfter(v, now)
		assert.False(t, ok, v)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 503} {
		assert.True(t, isRetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 404} {
		assert.False(t, isRetryableStatus(code), code)
	}
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
