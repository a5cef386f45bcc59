package observe

import (
	"context"
	"time"

	"github.com/goforj/mcstore/storecore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// OTel records store operations as OpenTelemetry metrics and, when a tracer
// is set, as spans backdated to the operation start.
type OTel struct {
	tracer   trace.Tracer
	ops      metric.Int64Counter
	errs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTel creates the instruments on meter. A nil meter records nothing and a
// nil tracer disables spans.
func NewOTel(meter metric.Meter, tracer trace.Tracer) (*OTel, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("mcstore")
	}
	ops, err := meter.Int64Counter(
		"mcstore.ops.total",
		metric.WithDescription("Total number of store operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter(
		"mcstore.ops.errors",
		metric.WithDescription("Total number of failed store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"mcstore.op.duration_ms",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &OTel{tracer: tracer, ops: ops, errs: errs, duration: duration}, nil
}

// OnStoreOp implements mcstore.Observer.
func (o *OTel) OnStoreOp(ctx context.Context, op, key string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
	attrs := []attribute.KeyValue{
		attribute.String("mcstore.op", op),
		attribute.String("mcstore.driver", string(driver)),
		attribute.String("mcstore.result", result(op, hit, err)),
	}
	opt := metric.WithAttributes(attrs...)
	o.ops.Add(ctx, 1, opt)
	if err != nil {
		o.errs.Add(ctx, 1, opt)
	}
	o.duration.Record(ctx, float64(dur)/float64(time.Millisecond), opt)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, "mcstore."+op,
		trace.WithTimestamp(end.Add(-dur)),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("mcstore.key", key))...),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}
