package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Количество комнат с участниками",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Количество живых сессий",
		},
	)

	// Переходы состояния агента
	agentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_transitions_total",
			Help: "Переходы состояния агента",
		},
		[]string{"from", "to"},
	)

	agentErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Ошибки эпизодов агента",
		},
		[]string{"code"},
	)

	// Чанки, вытесненные из переполненной очереди
	audioChunksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_chunks_dropped_total",
			Help: "Выброшенные аудио чанки",
		},
		[]string{"role"},
	)

	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Время стадий аудио пайплайна",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"stage", "outcome"},
	)

	relayDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_relay_dropped_total",
			Help: "Сигнальные сообщения, не доставленные получателю",
		},
		[]string{"reason"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func IncrementActiveRooms() {
	activeRooms.Inc()
}

func DecrementActiveRooms() {
	activeRooms.Dec()
}

func IncrementActiveSessions() {
	activeSessions.Inc()
}

func DecrementActiveSessions() {
	activeSessions.Dec()
}

func RecordAgentTransition(from, to string) {
	agentTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordAgentError(code string) {
	agentErrorsTotal.WithLabelValues(code).Inc()
}

func RecordDroppedChunk(role string) {
	audioChunksDroppedTotal.WithLabelValues(role).Inc()
}

func RecordPipelineStage(stage string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	pipelineDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

func RecordRelayDropped(reason string) {
	relayDroppedTotal.WithLabelValues(reason).Inc()
}
