package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения label "disposition" для сообщений очереди.
const (
	DispositionAck        = "ack"
	DispositionRetry      = "retry"
	DispositionDeadLetter = "dead_letter"
	DispositionMalformed  = "malformed"
	DispositionRequeue    = "requeue"
)

// Значения label "result" для кэша шаблонов.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics — Prometheus метрики конвейера доставки.
//
// Все методы допускают nil receiver: компоненты без метрик (тесты,
// утилиты) просто не пишут их.
type Metrics struct {
	messages     *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	cache        *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "messages_total",
			Help:      "Queue messages by final disposition.",
		}, []string{"disposition"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by resulting status.",
		}, []string{"status"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Name:      "template_cache_total",
			Help:      "Template cache lookups by result.",
		}, []string{"result"}),
		sendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "herald",
			Name:      "send_duration_seconds",
			Help:      "Duration of transport send calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "herald",
			Name:      "messages_in_flight",
			Help:      "Deliveries currently being processed.",
		}),
	}
}

// RegisterBrokerConnected регистрирует gauge состояния соединения с брокером:
// 1 — соединение открыто, 0 — нет. Значение читается при каждом scrape.
func RegisterBrokerConnected(reg prometheus.Registerer, connected func() bool) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "herald",
		Name:      "broker_connected",
		Help:      "Whether the AMQP connection is currently open.",
	}, func() float64 {
		if connected() {
			return 1
		}
		return 0
	})
}

// Message учитывает решение по сообщению очереди.
func (m *Metrics) Message(disposition string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(disposition).Inc()
}

// Delivery учитывает записанный статус доставки.
func (m *Metrics) Delivery(status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}

// CacheLookup учитывает результат обращения к кэшу шаблонов.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

// ObserveSend учитывает длительность вызова транспорта.
func (m *Metrics) ObserveSend(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sendDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// InFlight изменяет число обрабатываемых сообщений на delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}
