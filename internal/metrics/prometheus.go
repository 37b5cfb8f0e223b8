package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poolserve/internal/pool"
)

// Collector はプールとサーバーの Prometheus メトリクスを保持する
type Collector struct {
	registry *prometheus.Registry

	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsRunning   prometheus.Gauge
	WorkerFaults  prometheus.Counter
	JobDuration   prometheus.Histogram
	Requests      *prometheus.CounterVec
}

// NewCollector は専用のレジストリにメトリクスを登録した Collector を作成する
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the pool",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that ran to completion",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Number of jobs currently executing",
		}),
		WorkerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_faults_total",
			Help:      "Total number of workers terminated by a panicking job",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Histogram of job execution time",
			Buckets:   prometheus.DefBuckets,
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served, by status code",
		}, []string{"status"}),
	}

	c.registry.MustRegister(
		c.JobsSubmitted,
		c.JobsCompleted,
		c.JobsRunning,
		c.WorkerFaults,
		c.JobDuration,
		c.Requests,
	)

	return c
}

// PoolHooks はメトリクスを更新する pool.Hooks を返す
func (c *Collector) PoolHooks() pool.Hooks {
	return pool.Hooks{
		OnSubmit: func() {
			c.JobsSubmitted.Inc()
		},
		OnStart: func(int) {
			c.JobsRunning.Inc()
		},
		OnFinish: func(_ int, elapsed time.Duration) {
			c.JobsRunning.Dec()
			c.JobsCompleted.Inc()
			c.JobDuration.Observe(elapsed.Seconds())
		},
		OnWorkerExit: func(_ int, err error) {
			if err != nil {
				c.JobsRunning.Dec()
				c.WorkerFaults.Inc()
			}
		},
	}
}

// TrackPool はプールのワーカー数とキュー長をゲージとして登録する
func (c *Collector) TrackPool(namespace string, p *pool.Pool) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Configured number of workers",
		}, func() float64 { return float64(p.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_alive",
			Help:      "Number of workers that have not stopped",
		}, func() float64 { return float64(p.Alive()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Number of jobs waiting for a worker",
		}, func() float64 { return float64(p.Queued()) }),
	)
}

// ObserveRequest はレスポンスのステータスコードを記録する
func (c *Collector) ObserveRequest(status string) {
	c.Requests.WithLabelValues(status).Inc()
}

// Registry はレジストリを返す
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler は /metrics 用の HTTP ハンドラを返す
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
