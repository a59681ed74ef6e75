package metrics

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	defaultCollector *Collector
	once             sync.Once
)

// GetCollector returns the process-wide collector registered on the default
// prometheus registry.
func GetCollector(namespace, appName string) *Collector {
	once.Do(func() {
		defaultCollector = NewCollector(namespace, appName, prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// Collector implements errlog.Observer.
type Collector struct {
	AppName        string
	CapturedErrors *prometheus.CounterVec
	WriteFailures  prometheus.Counter
	WriteDuration  prometheus.Histogram
}

type SnapshotResponse struct {
	AppName   string                 `json:"app_name"`
	Timestamp time.Time              `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`
}

func NewCollector(namespace, appName string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		AppName: appName,
		CapturedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captured_errors_total",
				Help:      "Total number of captured request failures",
			},
			[]string{"app", "type", "status"},
		),
		WriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "log_write_failures_total",
				Help:        "Total number of error records that could not be written",
				ConstLabels: prometheus.Labels{"app": appName},
			},
		),
		WriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "log_write_duration_seconds",
				Help:        "Time spent serializing and appending one error record",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1},
				ConstLabels: prometheus.Labels{"app": appName},
			},
		),
	}
}

func (m *Collector) CaptureObserved(kind string, statusCode int) {
	m.CapturedErrors.With(prometheus.Labels{
		"app":    m.AppName,
		"type":   kind,
		"status": strconv.Itoa(statusCode),
	}).Inc()
}

func (m *Collector) WriteObserved(elapsed time.Duration, err error) {
	m.WriteDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.WriteFailures.Inc()
	}
}

// GetMetricsJSON returns the collector state in JSON format
func (m *Collector) GetMetricsJSON() ([]byte, error) {
	snapshot := SnapshotResponse{
		AppName:   m.AppName,
		Timestamp: time.Now(),
		Metrics: map[string]interface{}{
			"captured_errors":     getCounterVecMetrics(m.CapturedErrors),
			"log_write_failures":  getCounterValue(m.WriteFailures),
			"log_write_durations": getHistogramMetrics(m.WriteDuration),
		},
	}

	return json.Marshal(snapshot)
}

func getHistogramMetrics(c prometheus.Collector) map[string]float64 {
	metrics := make(map[string]float64)
	for _, dtoMetric := range collect(c) {
		hist := dtoMetric.GetHistogram()
		for _, bucket := range hist.GetBucket() {
			metrics[fmt.Sprintf("bucket_%g", bucket.GetUpperBound())] = float64(bucket.GetCumulativeCount())
		}
		metrics["sum"] = hist.GetSampleSum()
		metrics["count"] = float64(hist.GetSampleCount())
	}
	return metrics
}

func getCounterVecMetrics(c prometheus.Collector) map[string]float64 {
	metrics := make(map[string]float64)
	for _, dtoMetric := range collect(c) {
		metrics[metricName(dtoMetric)] = dtoMetric.GetCounter().GetValue()
	}
	return metrics
}

func getCounterValue(c prometheus.Collector) float64 {
	var total float64
	for _, dtoMetric := range collect(c) {
		total += dtoMetric.GetCounter().GetValue()
	}
	return total
}

func collect(c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric, 1000)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var out []*dto.Metric
	for metric := range ch {
		dtoMetric := &dto.Metric{}
		if err := metric.Write(dtoMetric); err != nil {
			continue
		}
		out = append(out, dtoMetric)
	}
	return out
}

func metricName(dtoMetric *dto.Metric) string {
	var labels []string
	for _, label := range dtoMetric.GetLabel() {
		labels = append(labels, fmt.Sprintf("%s=%s", label.GetName(), label.GetValue()))
	}
	return strings.Join(labels, ",")
}
