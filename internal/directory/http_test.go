package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directoryServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newDirectoryServer(t *testing.T) *directoryServer {
	t.Helper()
	s := &directoryServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/containers/")
		switch id {
		case "work-ctx":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Entry{ID: id, Name: "Work", Role: "engineering"})
		case "norole-ctx":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Entry{ID: id, Name: "Personal"})
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestHTTP(t *testing.T, url string) *HTTP {
	t.Helper()
	h, err := NewHTTP(HTTPConfig{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	return h
}

func TestHTTPResolveAndRole(t *testing.T) {
	ctx := context.Background()
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)

	id, err := h.Resolve(ctx, "work-ctx")
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "work-ctx", Name: "Work"}, id)

	role, found, err := h.Role(ctx, "work-ctx")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "engineering", role)

	_, found, err = h.Role(ctx, "norole-ctx")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHTTPNotFoundKeepsCircuitClosed(t *testing.T) {
	ctx := context.Background()
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)

	for i := 0; i < 10; i++ {
		_, err := h.Resolve(ctx, "unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, h.Breaker().State())
}

func TestHTTPFailuresTripBreaker(t *testing.T) {
	ctx := context.Background()
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)

	for i := 0; i < 5; i++ {
		_, err := h.Resolve(ctx, "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, resilience.StateOpen, h.Breaker().State())

	hits := srv.hits.Load()
	_, err := h.Resolve(ctx, "work-ctx")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, hits, srv.hits.Load(), "open circuit must not reach the server")
}

func TestHTTPRateLimitHonoursContext(t *testing.T) {
	srv := newDirectoryServer(t)
	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, RPS: 0.001})
	require.NoError(t, err)

	// the single burst token is spent by the first call
	_, err = h.Resolve(context.Background(), "work-ctx")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Resolve(ctx, "work-ctx")
	assert.Error(t, err)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestNewHTTPRejectsBadURL(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestHTTPLookupScopeFetchesOnce(t *testing.T) {
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)
	ctx := WithLookupScope(context.Background())

	id, err := h.Resolve(ctx, "work-ctx")
	require.NoError(t, err)
	assert.Equal(t, "Work", id.Name)

	// the directory goes down between the two questions
	srv.Close()

	role, found, err := h.Role(ctx, "work-ctx")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "engineering", role)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestHTTPWithoutScopeFetchesEachTime(t *testing.T) {
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)
	ctx := context.Background()

	_, err := h.Resolve(ctx, "work-ctx")
	require.NoError(t, err)
	_, _, err = h.Role(ctx, "work-ctx")
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestLookupScopeSkipsNotFound(t *testing.T) {
	srv := newDirectoryServer(t)
	h := newTestHTTP(t, srv.URL)
	ctx := WithLookupScope(context.Background())

	for i := 0; i < 2; i++ {
		_, err := h.Resolve(ctx, "unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(2), srv.hits.Load())
}
