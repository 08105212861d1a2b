package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics.checkouts == nil || metrics.compensations == nil {
		t.Fatal("counter vectors should not be nil")
	}
	if metrics.completed == nil || metrics.canceled == nil || metrics.deleted == nil || metrics.restoredUnits == nil {
		t.Fatal("lifecycle counters should not be nil")
	}
	if metrics.checkoutDuration == nil || metrics.stepDuration == nil {
		t.Fatal("histograms should not be nil")
	}
	if metrics.inFlight == nil || metrics.outboxEvents == nil {
		t.Fatal("gauge and outbox counter should not be nil")
	}
}

func TestNewCheckoutMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(reg)
	second := NewCheckoutMetricsWithRegisterer(reg)

	first.RecordOrderCompleted()
	second.RecordOrderCompleted()

	if got := counterValue(t, first.completed); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestRecordCheckoutLifecycle(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutStarted()
	metrics.RecordCheckoutStarted()
	if got := gaugeValue(t, metrics.inFlight); got != 2 {
		t.Fatalf("expected 2 in flight, got %f", got)
	}

	metrics.RecordCheckoutFinished(CheckoutResultSuccess, 10*time.Millisecond)
	metrics.RecordCheckoutFinished(CheckoutResultInsufficientStock, 5*time.Millisecond)

	if got := gaugeValue(t, metrics.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %f", got)
	}
	if got := counterValue(t, metrics.checkouts.WithLabelValues(CheckoutResultSuccess)); got != 1 {
		t.Fatalf("expected 1 successful checkout, got %f", got)
	}
	if got := counterValue(t, metrics.checkouts.WithLabelValues(CheckoutResultInsufficientStock)); got != 1 {
		t.Fatalf("expected 1 rejected checkout, got %f", got)
	}

	histogram := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(histogram); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if histogram.Histogram.GetSampleCount() != 2 {
		t.Fatalf("expected 2 duration samples, got %d", histogram.Histogram.GetSampleCount())
	}
}

func TestRecordCompensation(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCompensation(true)
	metrics.RecordCompensation(false)
	metrics.RecordCompensation(false)

	if got := counterValue(t, metrics.compensations.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok compensation, got %f", got)
	}
	if got := counterValue(t, metrics.compensations.WithLabelValues("failed")); got != 2 {
		t.Fatalf("expected 2 failed compensations, got %f", got)
	}
}

func TestRecordOrderCanceled(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderCanceled(3)
	metrics.RecordOrderCanceled(0)

	if got := counterValue(t, metrics.canceled); got != 2 {
		t.Fatalf("expected 2 cancellations, got %f", got)
	}
	if got := counterValue(t, metrics.restoredUnits); got != 3 {
		t.Fatalf("expected 3 restored units, got %f", got)
	}
}

func TestRecordStepDurationAndCounters(t *testing.T) {
	metrics := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordStepDuration("reserve_stock", 3*time.Millisecond)
	metrics.RecordOrderDeleted()
	metrics.RecordOutboxEvent()

	if got := counterValue(t, metrics.deleted); got != 1 {
		t.Fatalf("expected 1 deleted order, got %f", got)
	}
	if got := counterValue(t, metrics.outboxEvents); got != 1 {
		t.Fatalf("expected 1 outbox event, got %f", got)
	}
}
