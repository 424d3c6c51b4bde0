package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricCyclesTotal        = "auto_trader_cycles_total"
	MetricCyclesFailedTotal  = "auto_trader_cycles_failed_total"
	MetricPurchasesTotal     = "auto_trader_purchases_total"
	MetricSalesTotal         = "auto_trader_sales_total"
	MetricSpendTotal         = "auto_trader_spend_dollars_total"
	MetricEarnTotal          = "auto_trader_earn_dollars_total"
	MetricCycleDuration      = "auto_trader_cycle_duration_seconds"
	MetricStageDuration      = "auto_trader_stage_duration_seconds"
	MetricBrowserActions     = "auto_trader_browser_actions_total"
	MetricLoginAttemptsTotal = "auto_trader_login_attempts_total"
	MetricBlocked            = "auto_trader_blocked"
	MetricConsecutiveErrors  = "auto_trader_consecutive_errors"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	CyclesTotal        metric.Int64Counter
	CyclesFailedTotal  metric.Int64Counter
	PurchasesTotal     metric.Int64Counter
	SalesTotal         metric.Int64Counter
	SpendTotal         metric.Int64Counter
	EarnTotal          metric.Int64Counter
	CycleDuration      metric.Float64Histogram
	StageDuration      metric.Float64Histogram
	BrowserActions     metric.Int64Counter
	LoginAttemptsTotal metric.Int64Counter
	Blocked            metric.Int64ObservableGauge
	ConsecutiveErrors  metric.Int64ObservableGauge

	// State for observable gauges
	mu             sync.RWMutex
	blockedVal     int64
	consecutiveVal int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.CyclesTotal, err = meter.Int64Counter(MetricCyclesTotal, metric.WithDescription("Total trading cycles run"))
	if err != nil {
		return err
	}

	m.CyclesFailedTotal, err = meter.Int64Counter(MetricCyclesFailedTotal, metric.WithDescription("Total trading cycles that ended unsuccessfully"))
	if err != nil {
		return err
	}

	m.PurchasesTotal, err = meter.Int64Counter(MetricPurchasesTotal, metric.WithDescription("Total purchase transactions"))
	if err != nil {
		return err
	}

	m.SalesTotal, err = meter.Int64Counter(MetricSalesTotal, metric.WithDescription("Total sale listings placed"))
	if err != nil {
		return err
	}

	m.SpendTotal, err = meter.Int64Counter(MetricSpendTotal, metric.WithDescription("Cumulative dollars spent on purchases"))
	if err != nil {
		return err
	}

	m.EarnTotal, err = meter.Int64Counter(MetricEarnTotal, metric.WithDescription("Cumulative dollars listed for sale"))
	if err != nil {
		return err
	}

	m.CycleDuration, err = meter.Float64Histogram(MetricCycleDuration, metric.WithDescription("Wall-clock duration of a full cycle"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.StageDuration, err = meter.Float64Histogram(MetricStageDuration, metric.WithDescription("Wall-clock duration of one cycle stage"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.BrowserActions, err = meter.Int64Counter(MetricBrowserActions, metric.WithDescription("Total paced browser actions emitted"))
	if err != nil {
		return err
	}

	m.LoginAttemptsTotal, err = meter.Int64Counter(MetricLoginAttemptsTotal, metric.WithDescription("Total interactive login attempts"))
	if err != nil {
		return err
	}

	// Observables
	m.Blocked, err = meter.Int64ObservableGauge(MetricBlocked, metric.WithDescription("1 when funds, space and selling slots are all exhausted"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.blockedVal)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ConsecutiveErrors, err = meter.Int64ObservableGauge(MetricConsecutiveErrors, metric.WithDescription("Current consecutive cycle error count"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.consecutiveVal)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetBlocked updates the blocked gauge state.
func (m *MetricsHolder) SetBlocked(blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blocked {
		m.blockedVal = 1
	} else {
		m.blockedVal = 0
	}
}

// SetConsecutiveErrors updates the consecutive-error gauge state.
func (m *MetricsHolder) SetConsecutiveErrors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveVal = int64(n)
}

// RecordStage records one stage duration with its name attribute. A nil
// holder or uninitialized instrument is a no-op so tests can run without
// telemetry setup.
func (m *MetricsHolder) RecordStage(ctx context.Context, stage string, seconds float64, success bool) {
	if m == nil || m.StageDuration == nil {
		return
	}
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("success", success),
	))
}
