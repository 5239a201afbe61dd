package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — метрики запросов к серверу OpenRefine.
//
// Каждый клиент держит свой Registry, чтобы тесты и несколько клиентов
// в одном процессе не конфликтовали на глобальном registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	jobRuns  *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_requests_total",
			Help: "Total requests sent to the OpenRefine server",
		}, []string{"command", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refinery_request_duration_seconds",
			Help:    "Duration of requests to the OpenRefine server",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_job_runs_total",
			Help: "Total cleaning job runs by result",
		}, []string{"job", "result"}),
	}

	m.Registry.MustRegister(m.requests, m.duration, m.jobRuns)

	return m
}

// ObserveRequest учитывает один запрос. status — HTTP-код или 0 при
// сетевой ошибке.
func (m *Metrics) ObserveRequest(command string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(command, label).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveJobRun учитывает завершённый запуск job.
func (m *Metrics) ObserveJobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// WriteTextfile сохраняет метрики в формате textfile collector.
// Пустой path — ничего не делает.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
