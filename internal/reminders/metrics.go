package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder scan. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	// DispatchTotal counts channel dispatches by channel and result.
	DispatchTotal *prometheus.CounterVec

	// ScanDuration is the wall time of one RunOnce.
	ScanDuration prometheus.Histogram

	// OpenBookings is the number of bookings seen by the last scan.
	OpenBookings prometheus.Gauge

	// BookingErrors counts bookings whose processing failed in a scan.
	BookingErrors prometheus.Counter

	// Retries counts dispatch retry attempts.
	Retries prometheus.Counter

	// RateLimitWaits counts dispatches that had to wait for the limiter.
	RateLimitWaits prometheus.Counter
}

// NewMetrics registers the reminder metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_dispatch_total",
				Help:      "Reminder channel dispatches by result",
			},
			[]string{"channel", "result"},
		),
		ScanDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_scan_duration_seconds",
				Help:      "Duration of one reminder scan",
				Buckets:   []float64{.05, .1, .5, 1, 5, 15, 60},
			},
		),
		OpenBookings: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminder_open_bookings",
				Help:      "Open bookings examined by the last reminder scan",
			},
		),
		BookingErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_booking_errors_total",
				Help:      "Bookings that failed during a reminder scan",
			},
		),
		Retries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_retries_total",
				Help:      "Total number of dispatch retry attempts",
			},
		),
		RateLimitWaits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_rate_limit_waits_total",
				Help:      "Dispatches delayed by the rate limiter",
			},
		),
	}
}

func (m *Metrics) incDispatch(ch Channel, result string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(string(ch), result).Inc()
}

func (m *Metrics) observeScan(seconds float64, open int) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
	m.OpenBookings.Set(float64(open))
}

func (m *Metrics) incBookingErrors() {
	if m == nil {
		return
	}
	m.BookingErrors.Inc()
}

func (m *Metrics) incRetries() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) incRateLimitWaits() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
