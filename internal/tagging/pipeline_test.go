package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/courier/internal/correlation"
	"github.com/GriffinCanCode/courier/internal/directory"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/courier/internal/notify"
	"github.com/GriffinCanCode/courier/internal/relay"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const counterKey = "pioneerCorrelationId"

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(v any) bool {
	args := m.Called(v)
	return args.Bool(0)
}

type notifications struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *notifications) Notify(note notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *notifications) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

// countingAllocator records Next calls.
type countingAllocator struct {
	next  atomic.Int64
	calls atomic.Int32
	ready chan struct{}
}

func newCountingAllocator(start int64) *countingAllocator {
	a := &countingAllocator{ready: make(chan struct{})}
	a.next.Store(start)
	close(a.ready)
	return a
}

func (a *countingAllocator) Wait(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *countingAllocator) Next() (int64, error) {
	a.calls.Add(1)
	return a.next.Add(1), nil
}

type resolverFunc func(ctx context.Context, id string) (directory.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context, id string) (directory.Identity, error) {
	return f(ctx, id)
}

type rolesFunc func(ctx context.Context, id string) (string, bool, error)

func (f rolesFunc) Role(ctx context.Context, id string) (string, bool, error) {
	return f(ctx, id)
}

type fixture struct {
	pipeline  *Pipeline
	sender    *mockSender
	notes     *notifications
	allocator *countingAllocator
	dir       *directory.Memory
	metrics   *monitoring.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sender:    &mockSender{},
		notes:     &notifications{},
		allocator: newCountingAllocator(0),
		dir: directory.NewMemory(
			directory.Entry{ID: "work-ctx", Name: "Work", Role: "engineering"},
			directory.Entry{ID: "personal-ctx", Name: "Personal"},
		),
		metrics: monitoring.NewMetrics(),
	}
	f.pipeline = New(Config{}, f.allocator, f.sender, f.dir, f.dir, f.notes, WithMetrics(f.metrics))
	return f
}

func headers(kv ...string) []Header {
	out := []Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Header{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestWorkContainerScenario(t *testing.T) {
	ctx := context.Background()
	store := correlation.NewMemoryStore()
	require.NoError(t, store.Set(ctx, counterKey, 41))

	alloc := correlation.NewAllocator(store, counterKey)
	alloc.Initialize(ctx)

	sender := &mockSender{}
	sender.On("Send", relay.NewContextEvent(42, "engineering", "Work")).Return(true).Once()

	dir := directory.NewMemory(directory.Entry{ID: "work-ctx", Name: "Work", Role: "engineering"})
	p := New(Config{}, alloc, sender, dir, dir, &notifications{})

	res := p.Handle(ctx, Request{ContainerID: "work-ctx", Headers: headers("Accept", "*/*")})
	require.NotNil(t, res)
	assert.Equal(t, headers("Accept", "*/*", "Pioneer-Correlation-Id", "42"), res.Headers)
	sender.AssertExpectations(t)

	require.NoError(t, alloc.Close(ctx))
	v, found, err := store.Get(ctx, counterKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), v)
}

func TestSuppliedHeaderIsReused(t *testing.T) {
	for _, name := range []string{"Pioneer-Correlation-Id", "pioneer-correlation-id", "PIONEER-CORRELATION-ID"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.sender.On("Send", relay.NewContextEvent(77, "engineering", "Work")).Return(true).Once()

			in := headers("Accept", "*/*", name, "77")
			res, outcome := f.pipeline.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: in})

			require.NotNil(t, res)
			assert.Equal(t, OutcomeEmitted, outcome)
			assert.Equal(t, in, res.Headers)
			assert.Zero(t, f.allocator.calls.Load(), "a supplied id must not mint")
			f.sender.AssertExpectations(t)
		})
	}
}

func TestNonParticipatingContainersAreSkipped(t *testing.T) {
	for _, container := range []string{"", DefaultContainerID, PrivateContainerID} {
		t.Run("container="+container, func(t *testing.T) {
			f := newFixture(t)
			res, outcome := f.pipeline.Process(context.Background(),
				Request{ContainerID: container, Headers: headers("Accept", "*/*")})

			assert.Nil(t, res)
			assert.Equal(t, OutcomeSkipped, outcome)
			assert.Zero(t, f.allocator.calls.Load())
			f.sender.AssertNotCalled(t, "Send", mock.Anything)
			assert.Empty(t, f.notes.all())
		})
	}
}

func TestAbsentHeadersAreSkipped(t *testing.T) {
	f := newFixture(t)
	res, outcome := f.pipeline.Process(context.Background(), Request{ContainerID: "work-ctx"})

	assert.Nil(t, res)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.allocator.calls.Load())
}

func TestEmptyHeaderSetIsTagged(t *testing.T) {
	f := newFixture(t)
	f.sender.On("Send", relay.NewContextEvent(1, "engineering", "Work")).Return(true)

	res := f.pipeline.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: []Header{}})
	require.NotNil(t, res)
	assert.Equal(t, headers("Pioneer-Correlation-Id", "1"), res.Headers)
}

func TestMissingRoleNotifiesAndSuppresses(t *testing.T) {
	tests := []struct {
		name  string
		roles directory.RoleDirectory
	}{
		{"empty role", nil},
		{"role absent from directory", rolesFunc(func(context.Context, string) (string, bool, error) {
			return "", false, directory.ErrNotFound
		})},
		{"role reported not found", rolesFunc(func(context.Context, string) (string, bool, error) {
			return "", false, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			roles := tt.roles
			if roles == nil {
				roles = f.dir
			}
			p := New(Config{}, f.allocator, f.sender, f.dir, roles, f.notes, WithMetrics(f.metrics))

			res, outcome := p.Process(context.Background(), Request{ContainerID: "personal-ctx", Headers: headers("Accept", "*/*")})

			require.NotNil(t, res)
			assert.Equal(t, OutcomeSuppressed, outcome)
			// the minted header is still returned so the request proceeds
			assert.Equal(t, headers("Accept", "*/*", "Pioneer-Correlation-Id", "1"), res.Headers)
			f.sender.AssertNotCalled(t, "Send", mock.Anything)

			notes := f.notes.all()
			require.Len(t, notes, 1)
			assert.Equal(t, notify.Notification{
				Title:       "Pioneer Integration Error",
				Message:     "Container 'Personal' missing role! Configure in settings.",
				Icon:        "img/multiaccountcontainer-48.svg",
				ContainerID: "personal-ctx",
			}, notes[0])
		})
	}
}

func TestUnresolvedIdentityEmitsDefaults(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		failures float64
	}{
		{"not found", directory.ErrNotFound, 0},
		{"lookup error", errors.New("directory down"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resolver := resolverFunc(func(context.Context, string) (directory.Identity, error) {
				return directory.Identity{}, tt.err
			})
			p := New(Config{}, f.allocator, f.sender, resolver, f.dir, f.notes, WithMetrics(f.metrics))
			f.sender.On("Send", relay.NewContextEvent(1, "default", "Default")).Return(true).Once()

			res, outcome := p.Process(context.Background(), Request{ContainerID: "ghost-ctx", Headers: headers()})

			require.NotNil(t, res)
			assert.Equal(t, OutcomeEmitted, outcome)
			assert.Empty(t, f.notes.all())
			f.sender.AssertExpectations(t)
			assert.Equal(t, tt.failures, testutil.ToFloat64(f.metrics.LookupFailures.WithLabelValues("identity")))
		})
	}
}

func TestRoleLookupErrorFallsBackToDefaultRole(t *testing.T) {
	f := newFixture(t)
	roles := rolesFunc(func(context.Context, string) (string, bool, error) {
		return "", false, errors.New("storage unavailable")
	})
	p := New(Config{}, f.allocator, f.sender, f.dir, roles, f.notes, WithMetrics(f.metrics))
	f.sender.On("Send", relay.NewContextEvent(1, "default", "Work")).Return(true).Once()

	_, outcome := p.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})

	assert.Equal(t, OutcomeEmitted, outcome)
	assert.Empty(t, f.notes.all())
	f.sender.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LookupFailures.WithLabelValues("role")))
}

func TestSlowLookupIsBounded(t *testing.T) {
	f := newFixture(t)
	resolver := resolverFunc(func(ctx context.Context, _ string) (directory.Identity, error) {
		<-ctx.Done()
		return directory.Identity{}, ctx.Err()
	})
	p := New(Config{LookupTimeout: 20 * time.Millisecond}, f.allocator, f.sender, resolver, f.dir, f.notes)
	f.sender.On("Send", relay.NewContextEvent(1, "default", "Default")).Return(true).Once()

	start := time.Now()
	res := p.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})

	require.NotNil(t, res)
	assert.Less(t, time.Since(start), time.Second)
	f.sender.AssertExpectations(t)
}

func TestUnreadyAllocatorPassesRequestThrough(t *testing.T) {
	f := newFixture(t)
	blocked := &countingAllocator{ready: make(chan struct{})}
	p := New(Config{ReadyTimeout: 20 * time.Millisecond}, blocked, f.sender, f.dir, f.dir, f.notes, WithMetrics(f.metrics))

	res, outcome := p.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})

	assert.Nil(t, res)
	assert.Equal(t, OutcomeUnready, outcome)
	assert.Zero(t, blocked.calls.Load())
	f.sender.AssertNotCalled(t, "Send", mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("unready")))
}

func TestRequestWaitsForAllocatorLoad(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	store := &gatedStore{MemoryStore: correlation.NewMemoryStore(), gate: gate}
	require.NoError(t, store.MemoryStore.Set(ctx, counterKey, 100))

	alloc := correlation.NewAllocator(store, counterKey)
	alloc.Initialize(ctx)
	defer alloc.Close(ctx)

	sender := &mockSender{}
	sender.On("Send", relay.NewContextEvent(101, "engineering", "Work")).Return(true).Once()
	dir := directory.NewMemory(directory.Entry{ID: "work-ctx", Name: "Work", Role: "engineering"})
	p := New(Config{}, alloc, sender, dir, dir, &notifications{})

	done := make(chan *Result, 1)
	go func() {
		done <- p.Handle(ctx, Request{ContainerID: "work-ctx", Headers: headers()})
	}()

	select {
	case <-done:
		t.Fatal("request completed before the counter loaded")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, headers("Pioneer-Correlation-Id", "101"), res.Headers)
	case <-time.After(2 * time.Second):
		t.Fatal("request never completed")
	}
	sender.AssertExpectations(t)
}

type gatedStore struct {
	*correlation.MemoryStore
	gate chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, key string) (int64, bool, error) {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestNonNumericSuppliedIDIsNotSent(t *testing.T) {
	f := newFixture(t)
	in := headers("Pioneer-Correlation-Id", "abc")

	res, outcome := f.pipeline.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: in})

	require.NotNil(t, res)
	assert.Equal(t, OutcomeInvalidID, outcome)
	assert.Equal(t, in, res.Headers)
	assert.Zero(t, f.allocator.calls.Load())
	f.sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestCallerHeadersAreNotMutated(t *testing.T) {
	f := newFixture(t)
	f.sender.On("Send", mock.Anything).Return(true)

	in := make([]Header, 1, 8)
	in[0] = Header{Name: "Accept", Value: "*/*"}
	res := f.pipeline.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: in})

	require.NotNil(t, res)
	assert.Len(t, res.Headers, 2)
	assert.Equal(t, []Header{{Name: "Accept", Value: "*/*"}}, in)
	assert.Equal(t, Header{}, in[:2][1], "backing array must not be written")
}

func TestUndeliveredEventStillReturnsHeaders(t *testing.T) {
	f := newFixture(t)
	f.sender.On("Send", mock.Anything).Return(false)

	res, outcome := f.pipeline.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})

	require.NotNil(t, res)
	assert.Equal(t, OutcomeEmitted, outcome)
	assert.Equal(t, headers("Pioneer-Correlation-Id", "1"), res.Headers)
}

func TestConcurrentRequestsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	alloc := correlation.NewAllocator(correlation.NewMemoryStore(), counterKey)
	alloc.Initialize(ctx)
	defer alloc.Close(ctx)

	sender := &mockSender{}
	sender.On("Send", mock.Anything).Return(true)
	dir := directory.NewMemory(directory.Entry{ID: "work-ctx", Name: "Work", Role: "engineering"})
	p := New(Config{}, alloc, sender, dir, dir, &notifications{})

	const n = 100
	values := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.Handle(ctx, Request{ContainerID: "work-ctx", Headers: headers()})
			if assert.NotNil(t, res) && assert.Len(t, res.Headers, 1) {
				values <- res.Headers[0].Value
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := map[string]bool{}
	for v := range values {
		assert.False(t, seen[v], "id %s issued twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestOutcomeMetrics(t *testing.T) {
	f := newFixture(t)
	f.sender.On("Send", mock.Anything).Return(true)

	f.pipeline.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})
	f.pipeline.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: headers("pioneer-correlation-id", "9")})
	f.pipeline.Handle(context.Background(), Request{ContainerID: DefaultContainerID, Headers: headers()})

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("emitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CorrelationIDs.WithLabelValues("minted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CorrelationIDs.WithLabelValues("supplied")))
}

func TestCustomHeaderName(t *testing.T) {
	f := newFixture(t)
	f.sender.On("Send", mock.Anything).Return(true)
	p := New(Config{HeaderName: "X-Trace"}, f.allocator, f.sender, f.dir, f.dir, f.notes)

	res := p.Handle(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})
	require.NotNil(t, res)
	assert.Equal(t, headers("X-Trace", "1"), res.Headers)
	assert.Equal(t, "X-Trace", p.HeaderName())
}

func TestParticipates(t *testing.T) {
	assert.False(t, Participates(""))
	assert.False(t, Participates("firefox-default"))
	assert.False(t, Participates("firefox-private"))
	assert.True(t, Participates("firefox-container-3"))
}

func TestRemoteDirectoryIsAskedOncePerRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(directory.Entry{ID: "work-ctx", Name: "Work", Role: "engineering"})
	}))
	defer srv.Close()

	dir, err := directory.NewHTTP(directory.HTTPConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	f := newFixture(t)
	f.sender.On("Send", relay.NewContextEvent(1, "engineering", "Work")).Return(true).Once()
	p := New(Config{}, f.allocator, f.sender, dir, dir, f.notes)

	res, outcome := p.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})
	require.NotNil(t, res)
	assert.Equal(t, OutcomeEmitted, outcome)
	assert.Equal(t, int32(1), hits.Load())
	f.sender.AssertExpectations(t)

	f.sender.On("Send", relay.NewContextEvent(2, "engineering", "Work")).Return(true).Once()
	_, _ = p.Process(context.Background(), Request{ContainerID: "work-ctx", Headers: headers()})
	assert.Equal(t, int32(2), hits.Load(), "each request gets a fresh lookup")
	f.sender.AssertExpectations(t)
}
