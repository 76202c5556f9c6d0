package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// Metrics is the process-wide metric registry, exposed in Prometheus text
// format on its own listener. Nil when METRICS_ENABLED is off; every method
// is nil-safe so call sites never guard.
type Metrics struct {
	apiRequests    *CounterVec
	apiLatency     *HistogramVec
	apiInflight    *Gauge
	llmRequests    *CounterVec
	llmLatency     *HistogramVec
	sttRequests    *CounterVec
	ttsRequests    *CounterVec
	sessionsActive *Gauge
	turnsTotal     *CounterVec
	securityEvents *CounterVec
	snapshotOps    *CounterVec
	redisUp        *Gauge
	redisPing      *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("tutor_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"tutor_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("tutor_api_inflight_requests", "In-flight API requests."),
			llmRequests: NewCounterVec("tutor_llm_requests_total", "Tutoring model requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
			llmLatency: NewHistogramVec(
				"tutor_llm_request_duration_seconds",
				"Tutoring model latency in seconds by model/endpoint/status.",
				[]string{"model", "endpoint", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			),
			sttRequests:    NewCounterVec("tutor_stt_requests_total", "Speech-to-text requests by status.", []string{"status"}),
			ttsRequests:    NewCounterVec("tutor_tts_requests_total", "Text-to-speech requests by status.", []string{"status"}),
			sessionsActive: NewGauge("tutor_sessions_active", "Live tutoring session controllers."),
			turnsTotal:     NewCounterVec("tutor_turns_total", "Conversation turns by input kind/outcome.", []string{"kind", "outcome"}),
			securityEvents: NewCounterVec("tutor_security_events_total", "Security-related events by type.", []string{"event"}),
			snapshotOps:    NewCounterVec("tutor_snapshot_ops_total", "Snapshot store operations by op/status.", []string{"op", "status"}),
			redisUp:        NewGauge("tutor_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:      NewGauge("tutor_redis_ping_seconds", "Redis ping latency in seconds."),
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, endpoint, status)
	m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
}

func (m *Metrics) IncSTTRequest(status string) {
	if m == nil {
		return
	}
	m.sttRequests.Inc(status)
}

func (m *Metrics) IncTTSRequest(status string) {
	if m == nil {
		return
	}
	m.ttsRequests.Inc(status)
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) IncTurn(kind, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.Inc(kind, outcome)
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m == nil {
		return
	}
	m.securityEvents.Inc(event)
}

func (m *Metrics) IncSnapshotOp(op, status string) {
	if m == nil {
		return
	}
	m.snapshotOps.Inc(op, status)
}

// StartServer exposes /metrics on its own listener until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.WriteHTTP)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if log != nil {
			log.Info("metrics listener started", "addr", addr)
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Warn("metrics listener stopped", "error", err)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := m.WritePrometheus(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	collectors := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.sttRequests, m.ttsRequests,
		m.sessionsActive, m.turnsTotal,
		m.securityEvents, m.snapshotOps,
		m.redisUp, m.redisPing,
	}
	for _, c := range collectors {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartRedisProbe samples redis connectivity on an interval.
func (m *Metrics) StartRedisProbe(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				start := time.Now()
				err := rdb.Ping(probeCtx).Err()
				cancel()
				if err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis probe failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}
