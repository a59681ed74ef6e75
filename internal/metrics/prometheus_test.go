package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/errlog/pkg/errlog"
)

var _ errlog.Observer = (*Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test", "app", prometheus.NewRegistry())

	c.CaptureObserved("ValueError", 500)
	c.CaptureObserved("ValueError", 500)
	c.CaptureObserved(errlog.KindHTTPError, 404)
	c.WriteObserved(time.Millisecond, nil)
	c.WriteObserved(time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CapturedErrors.WithLabelValues("app", "ValueError", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CapturedErrors.WithLabelValues("app", errlog.KindHTTPError, "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WriteFailures))
}

func TestGetMetricsJSON(t *testing.T) {
	c := NewCollector("test", "app", prometheus.NewRegistry())
	c.CaptureObserved("ValueError", 500)
	c.WriteObserved(2*time.Millisecond, errors.New("disk full"))

	raw, err := c.GetMetricsJSON()
	require.NoError(t, err)

	var snapshot struct {
		AppName string `json:"app_name"`
		Metrics struct {
			CapturedErrors map[string]float64 `json:"captured_errors"`
			WriteFailures  float64            `json:"log_write_failures"`
			WriteDurations map[string]float64 `json:"log_write_durations"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(raw, &snapshot))

	assert.Equal(t, "app", snapshot.AppName)
	assert.Equal(t, 1.0, snapshot.Metrics.CapturedErrors["app=app,status=500,type=ValueError"])
	assert.Equal(t, 1.0, snapshot.Metrics.WriteFailures)
	assert.Equal(t, 1.0, snapshot.Metrics.WriteDurations["count"])
}

func TestGetCollectorIsShared(t *testing.T) {
	a := GetCollector("shared", "app")
	b := GetCollector("shared", "app")
	assert.Same(t, a, b)
}
