package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleet-dashboard"

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RefreshTotal         metric.Int64Counter
	ReloginTotal         metric.Int64Counter
	RPCRequestsTotal     metric.Int64Counter
	SettingsPersistTotal metric.Int64Counter
	ReportRequestsTotal  metric.Int64Counter
}

var (
	mu         sync.RWMutex
	appMetrics *AppMetrics
)

// InitAppMetrics creates the instruments from the global MeterProvider.
// Calling it again replaces the instruments (tests install their own provider).
func InitAppMetrics() error {
	meter := otel.GetMeterProvider().Meter(meterName)
	m := &AppMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.RefreshTotal, "session_refresh_total", "Token refresh attempts by outcome"},
		{&m.ReloginTotal, "session_relogin_total", "Silent re-login attempts by outcome"},
		{&m.RPCRequestsTotal, "backend_rpc_requests_total", "JSON-RPC calls to the backend"},
		{&m.SettingsPersistTotal, "settings_persist_total", "Remote settings persist calls"},
		{&m.ReportRequestsTotal, "report_requests_total", "Scheduled report requests"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{call}"))
		if err != nil {
			return fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	mu.Lock()
	appMetrics = m
	mu.Unlock()
	return nil
}

func get() *AppMetrics {
	mu.RLock()
	defer mu.RUnlock()
	return appMetrics
}

func add(ctx context.Context, pick func(*AppMetrics) metric.Int64Counter, attrs ...attribute.KeyValue) {
	m := get()
	if m == nil {
		return
	}
	pick(m).Add(ctx, 1, metric.WithAttributes(attrs...))
}

func RecordRefresh(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.RefreshTotal },
		attribute.String("outcome", outcome))
}

func RecordRelogin(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.ReloginTotal },
		attribute.String("outcome", outcome))
}

func RecordRPC(ctx context.Context, namespace, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.RPCRequestsTotal },
		attribute.String("namespace", namespace), attribute.String("outcome", outcome))
}

func RecordSettingsPersist(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.SettingsPersistTotal },
		attribute.String("outcome", outcome))
}

func RecordReport(ctx context.Context, reportType, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.ReportRequestsTotal },
		attribute.String("type", reportType), attribute.String("outcome", outcome))
}
