package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/pawlaunch/internal/metrics"
)

const meterName = "github.com/steveyegge/pawlaunch"

// Recorder implements metrics.Recorder on OTel instruments and emits a log
// record for every lifecycle event except health probes.
type Recorder struct {
	logger otellog.Logger

	stateChanges  metric.Int64Counter
	healthChecks  metric.Int64Counter
	healthLatency metric.Float64Histogram
	restarts      metric.Int64Counter
	operations    metric.Int64Counter
	opDuration    metric.Float64Histogram
	updateChecks  metric.Int64Counter
	removals      metric.Int64Counter
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder creates instruments on mp and a logger on lp.
func NewRecorder(mp metric.MeterProvider, lp otellog.LoggerProvider) *Recorder {
	m := mp.Meter(meterName)
	r := &Recorder{logger: lp.Logger(meterName)}

	// Errors only come from invalid names and still return usable no-op instruments.
	r.stateChanges, _ = m.Int64Counter("pawlaunch.server.state_changes.total",
		metric.WithDescription("Server state transitions"),
	)
	r.healthChecks, _ = m.Int64Counter("pawlaunch.server.health_checks.total",
		metric.WithDescription("Health probes by result"),
	)
	r.healthLatency, _ = m.Float64Histogram("pawlaunch.server.health_check.duration_ms",
		metric.WithDescription("Health probe latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	r.restarts, _ = m.Int64Counter("pawlaunch.server.restarts.total",
		metric.WithDescription("Server restarts by reason"),
	)
	r.operations, _ = m.Int64Counter("pawlaunch.operations.total",
		metric.WithDescription("Install operations by kind, mode and status"),
	)
	r.opDuration, _ = m.Float64Histogram("pawlaunch.operation.duration_ms",
		metric.WithDescription("Install operation wall time in milliseconds"),
		metric.WithUnit("ms"),
	)
	r.updateChecks, _ = m.Int64Counter("pawlaunch.update_checks.total",
		metric.WithDescription("Update checks by outcome"),
	)
	r.removals, _ = m.Int64Counter("pawlaunch.uninstall.removals.total",
		metric.WithDescription("Uninstall removals by component and status"),
	)
	return r
}

// ServerState implements metrics.Recorder.
func (r *Recorder) ServerState(from, to string) {
	ctx := context.Background()
	r.stateChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	sev := otellog.SeverityInfo
	if to == "crashed" {
		sev = otellog.SeverityWarn
	}
	r.emit(ctx, "server.state", sev,
		otellog.String("from", from),
		otellog.String("to", to),
	)
}

// HealthCheck implements metrics.Recorder.
func (r *Recorder) HealthCheck(healthy bool, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("healthy", healthy))
	r.healthChecks.Add(ctx, 1, attrs)
	r.healthLatency.Record(ctx, millis(d), attrs)
}

// ServerRestart implements metrics.Recorder.
func (r *Recorder) ServerRestart(reason string) {
	ctx := context.Background()
	r.restarts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	r.emit(ctx, "server.restart", otellog.SeverityInfo, otellog.String("reason", reason))
}

// Operation implements metrics.Recorder.
func (r *Recorder) Operation(op, mode string, d time.Duration, err error) {
	ctx := context.Background()
	status := statusStr(err)
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	r.operations.Add(ctx, 1, attrs)
	r.opDuration.Record(ctx, millis(d), attrs)
	r.emit(ctx, "operation."+op, severity(err),
		otellog.String("mode", mode),
		otellog.String("status", status),
		otellog.Float64("duration_ms", millis(d)),
		errKV(err),
	)
}

// UpdateCheck implements metrics.Recorder.
func (r *Recorder) UpdateCheck(outcome string) {
	ctx := context.Background()
	r.updateChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	sev := otellog.SeverityInfo
	if outcome == metrics.OutcomeError {
		sev = otellog.SeverityWarn
	}
	r.emit(ctx, "update.check", sev, otellog.String("outcome", outcome))
}

// ComponentRemoved implements metrics.Recorder.
func (r *Recorder) ComponentRemoved(component string, err error) {
	ctx := context.Background()
	status := statusStr(err)
	r.removals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("status", status),
	))
	r.emit(ctx, "uninstall.remove", severity(err),
		otellog.String("component", component),
		otellog.String("status", status),
		errKV(err),
	)
}

func (r *Recorder) emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetBody(otellog.StringValue(body))
	rec.SetSeverity(sev)
	rec.AddAttributes(attrs...)
	r.logger.Emit(ctx, rec)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}
