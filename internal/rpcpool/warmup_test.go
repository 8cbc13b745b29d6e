package rpcpool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func TestWarmup_FailedProbeRecordsOneFailure(t *testing.T) {
	p := newTestPool(t, "a", "b", "c")
	prober := new(mockProber)
	prober.On("Probe", mock.Anything, "a").Return(nil).Once()
	prober.On("Probe", mock.Anything, "b").Return(errors.New("connection refused")).Once()
	prober.On("Probe", mock.Anything, "c").Return(nil).Once()

	alive := p.Warmup(context.Background(), prober)
	assert.Equal(t, 2, alive)
	prober.AssertExpectations(t)

	b := endpointByURL(t, p, "b")
	assert.InDelta(t, 0.8, b.score, 1e-9)
	assert.Equal(t, 1, b.consecutiveFailures)

	// successful warmup probes leave the score untouched
	assert.Equal(t, 1.0, endpointByURL(t, p, "a").score)
	assert.Equal(t, 1.0, endpointByURL(t, p, "c").score)
}

func TestWarmup_AllProbesFailPoolStillServes(t *testing.T) {
	p := newTestPool(t, "a", "b")
	prober := new(mockProber)
	prober.On("Probe", mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

	assert.Zero(t, p.Warmup(context.Background(), prober))
	assert.NotNil(t, p.NextEndpoint())
}

func TestRecheck_ScoresBothOutcomes(t *testing.T) {
	p := newTestPool(t, "a", "b")
	prober := new(mockProber)
	prober.On("Probe", mock.Anything, "a").Return(nil)
	prober.On("Probe", mock.Anything, "b").Return(errors.New("503"))

	assert.Equal(t, 1, p.Recheck(context.Background(), prober))
	assert.Greater(t, endpointByURL(t, p, "a").score, 1.0)
	assert.Less(t, endpointByURL(t, p, "b").score, 1.0)
}

func healthServer(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,` + reply + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthProber(t *testing.T) {
	prober := NewHealthProber(time.Second, time.Second)
	ctx := context.Background()

	ok := healthServer(t, http.StatusOK, `"result":"ok"`)
	assert.NoError(t, prober.Probe(ctx, ok.URL))

	behind := healthServer(t, http.StatusOK, `"error":{"code":-32005,"message":"Node is behind by 42 slots"}`)
	err := prober.Probe(ctx, behind.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Node is behind")

	limited := healthServer(t, http.StatusTooManyRequests, `"result":"ok"`)
	assert.Error(t, prober.Probe(ctx, limited.URL))

	odd := healthServer(t, http.StatusOK, `"result":"unknown"`)
	assert.Error(t, prober.Probe(ctx, odd.URL))
}

func TestHealthProber_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	prober := NewHealthProber(50*time.Millisecond, 50*time.Millisecond)
	start := time.Now()
	assert.Error(t, prober.Probe(context.Background(), srv.URL))
	assert.Less(t, time.Since(start), time.Second)
}
