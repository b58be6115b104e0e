package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-traffic/internal/bikeshare"
)

func TestRecomputeObserve(t *testing.T) {
	c := NewCollector(time.Minute)
	assert.Equal(t, -1.0, testutil.ToFloat64(c.FilterMinute))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.RefreshInterval))

	c.RecomputeObserve(time.Millisecond, bikeshare.AnyTime(), 120)
	f, err := bikeshare.AtMinute(480)
	require.NoError(t, err)
	c.RecomputeObserve(time.Millisecond, f, 30)
	c.RecomputeObserve(time.Millisecond, f, 31)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Recomputes.WithLabelValues("any")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Recomputes.WithLabelValues("minute")))
	assert.Equal(t, 31.0, testutil.ToFloat64(c.FilteredTrips))
	assert.Equal(t, 480.0, testutil.ToFloat64(c.FilterMinute))
}

func TestDatasetAndUnavailable(t *testing.T) {
	c := NewCollector(0)
	c.DatasetSet(400, 90000)
	c.DataUnavailableInc("trips")

	assert.Equal(t, 400.0, testutil.ToFloat64(c.Stations))
	assert.Equal(t, 90000.0, testutil.ToFloat64(c.Trips))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DataUnavailable.WithLabelValues("trips")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Minute)
	c.DatasetSet(2, 3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "traffic_stations 2"))
	assert.True(t, strings.Contains(string(body), "traffic_trips 3"))
}
