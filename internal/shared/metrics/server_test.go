package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHealthz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("redis") }

	rec := httptest.NewRecorder()
	Handler(All(ok, ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Handler(All(ok, down)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestStreamCounters(t *testing.T) {
	c := NewStreamCounters(prometheus.NewRegistry(), "test")
	c.OnConsumed("live_odds")
	c.OnConsumed("live_odds")
	c.OnAcked("live_odds")
	c.OnError("handle")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Consumed.WithLabelValues("live_odds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Acked.WithLabelValues("live_odds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Errors.WithLabelValues("handle")))
}
