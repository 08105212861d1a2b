package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы оформления заказа для метки result.
const (
	CheckoutResultSuccess           = "success"
	CheckoutResultInsufficientStock = "insufficient_stock"
	CheckoutResultRejected          = "rejected"
	CheckoutResultError             = "error"
)

// CheckoutMetrics содержит метрики оформления и жизненного цикла заказов.
type CheckoutMetrics struct {
	// Счётчики операций
	checkouts     *prometheus.CounterVec
	completed     prometheus.Counter
	canceled      prometheus.Counter
	deleted       prometheus.Counter
	restoredUnits prometheus.Counter
	compensations *prometheus.CounterVec

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	outboxEvents prometheus.Counter

	// Gauge для оформлений в процессе
	inFlight prometheus.Gauge
}

// NewCheckoutMetrics создаёт метрики в глобальном реестре.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном реестре.
// Повторная регистрация возвращает уже зарегистрированные коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_checkouts_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"}),
		completed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_orders_completed_total",
			Help: "Total number of orders marked completed",
		}),
		canceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_orders_canceled_total",
			Help: "Total number of orders canceled with stock restored",
		}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_orders_deleted_total",
			Help: "Total number of orders deleted by administrators",
		}),
		restoredUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_stock_restored_units_total",
			Help: "Total number of stock units returned by cancellations",
		}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "canteen_checkout_compensations_total",
			Help: "Total number of checkout compensations by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "canteen_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "canteen_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "canteen_outbox_events_total",
			Help: "Total number of events written to the outbox",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "canteen_checkouts_in_flight",
			Help: "Number of checkouts currently being processed",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted отмечает начало оформления.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.inFlight.Inc()
}

// RecordCheckoutFinished фиксирует исход и длительность оформления.
func (m *CheckoutMetrics) RecordCheckoutFinished(result string, duration time.Duration) {
	m.inFlight.Dec()
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordCompensation фиксирует исход отката частично списанных остатков.
func (m *CheckoutMetrics) RecordCompensation(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordOrderCompleted увеличивает счётчик выданных заказов.
func (m *CheckoutMetrics) RecordOrderCompleted() {
	m.completed.Inc()
}

// RecordOrderCanceled увеличивает счётчик отмен и вернувшихся на склад единиц.
func (m *CheckoutMetrics) RecordOrderCanceled(restoredUnits int64) {
	m.canceled.Inc()
	if restoredUnits > 0 {
		m.restoredUnits.Add(float64(restoredUnits))
	}
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *CheckoutMetrics) RecordOrderDeleted() {
	m.deleted.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
