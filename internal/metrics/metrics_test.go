package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/jusox/internal/resolve"
	"github.com/John-Robertt/jusox/internal/schedule"
)

var (
	_ schedule.Metrics = (*Metrics)(nil)
	_ resolve.Metrics  = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New(false)

	m.ObserveLookup("forward", "ok", 20*time.Millisecond)
	m.ObserveLookup("forward", "timeout", time.Second)
	m.ObserveLookup("detail", "ok", 10*time.Millisecond)
	m.ObserveResolution("resolved", 100*time.Millisecond)
	m.CacheHit("forward")
	m.CacheMiss("forward")
	m.CacheMiss("detail")
	m.SchedulerState(4, 3)
	m.ObserveDispatchWait(90 * time.Millisecond)
	m.ObserveHTTP("/v1/resolve", http.StatusTooManyRequests)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("forward", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("forward", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheResults.WithLabelValues("forward", "hit")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CacheResults))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Running))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/resolve", "4xx")))
}

func TestMetrics_HandlerExposesPrivateRegistry(t *testing.T) {
	m := New(false)
	m.ObserveResolution("no_match", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `jusox_resolutions_total{outcome="no_match"} 1`)
	assert.NotContains(t, string(body), "go_goroutines")
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 400: "4xx", 429: "4xx", 502: "5xx"}
	for in, want := range cases {
		assert.Equal(t, want, statusClass(in), "status=%d", in)
	}
}
