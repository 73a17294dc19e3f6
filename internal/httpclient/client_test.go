package httpclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client := New(nil)

		require.NotNil(t, client)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
		assert.Equal(t, DefaultMaxBodySize, client.maxBodySize)
	})

	t.Run("custom config", func(t *testing.T) {
		client := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "bibfinder/test", MaxBodySize: 10})

		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "bibfinder/test", client.userAgent)
		assert.Equal(t, int64(10), client.maxBodySize)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		client := New(&Config{})

		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.NotEmpty(t, client.userAgent)
	})
}

func TestFetch(t *testing.T) {
	var receivedUA string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/photo.jpg":
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/large.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	})

	client := newTestClientWithConfig(t, &Config{UserAgent: "bibfinder/1.0", MaxBodySize: 32})

	t.Run("success", func(t *testing.T) {
		data, err := client.Fetch(t.Context(), server.URL+"/photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(data))
		assert.Equal(t, "bibfinder/1.0", receivedUA)
	})

	t.Run("non-2xx", func(t *testing.T) {
		_, err := client.Fetch(t.Context(), server.URL+"/missing.jpg")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})

	t.Run("body over limit", func(t *testing.T) {
		_, err := client.Fetch(t.Context(), server.URL+"/large.jpg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})
}

func TestFetch_ContextCancellation(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := client.Fetch(ctx, server.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_DefaultTimeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	// Context has no deadline, so the default timeout applies.
	_, err := client.Fetch(t.Context(), server.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_ContextTimeoutOverridesDefault(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})

	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	data, err := client.Fetch(ctx, server.URL)
	require.NoError(t, err, "request should succeed with context timeout")
	assert.Equal(t, "ok", string(data))
}

func TestFetch_Concurrent(t *testing.T) {
	var requestCount atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		_, _ = w.Write([]byte("ok"))
	})

	client := newTestClientWithConfig(t, nil)

	const concurrency = 30
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)
	for range concurrency {
		wg.Go(func() {
			if _, err := client.Fetch(t.Context(), server.URL); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err, "concurrent request failed")
	}
	assert.Equal(t, int32(concurrency), requestCount.Load())
}

func TestObserver(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	client := newTestClientWithConfig(t, nil)

	var (
		called   bool
		status   int
		observed time.Duration
	)
	client.SetObserver(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		called = true
		assert.NoError(t, err)
		assert.Equal(t, server.URL, req.URL.String())
		status = resp.StatusCode
		observed = elapsed
	})

	_, err := client.Fetch(t.Context(), server.URL)
	require.NoError(t, err)

	assert.True(t, called, "observer was not called")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Positive(t, observed)
}
