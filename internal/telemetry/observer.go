package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/switchboard/agent"
)

// Observer records dispatch metrics through the OTel metric API, alongside
// the Prometheus collector. It implements agent.Observer.
type Observer struct {
	dispatches  metric.Int64Counter
	dispatchDur metric.Float64Histogram
	hops        metric.Int64Counter
	hopDur      metric.Float64Histogram
	escalations metric.Int64Counter
}

var _ agent.Observer = (*Observer)(nil)

// NewObserver creates the instruments on meter.
func NewObserver(meter metric.Meter) (*Observer, error) {
	o := &Observer{}
	var err error
	if o.dispatches, err = meter.Int64Counter("switchboard.dispatches",
		metric.WithDescription("Finished dispatch cycles"),
		metric.WithUnit("{dispatch}")); err != nil {
		return nil, fmt.Errorf("create dispatch counter: %w", err)
	}
	if o.dispatchDur, err = meter.Float64Histogram("switchboard.dispatch.duration",
		metric.WithDescription("Dispatch cycle duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create dispatch histogram: %w", err)
	}
	if o.hops, err = meter.Int64Counter("switchboard.hops",
		metric.WithDescription("Responder hops"),
		metric.WithUnit("{hop}")); err != nil {
		return nil, fmt.Errorf("create hop counter: %w", err)
	}
	if o.hopDur, err = meter.Float64Histogram("switchboard.hop.duration",
		metric.WithDescription("Responder hop duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create hop histogram: %w", err)
	}
	if o.escalations, err = meter.Int64Counter("switchboard.escalations",
		metric.WithDescription("Conversations handed to a human"),
		metric.WithUnit("{escalation}")); err != nil {
		return nil, fmt.Errorf("create escalation counter: %w", err)
	}
	return o, nil
}

func (o *Observer) OnHop(ctx context.Context, ev agent.HopEvent) {
	attrs := metric.WithAttributes(
		attribute.String("responder", ev.Responder),
		attribute.String("status", string(ev.Status)),
		attribute.Bool("error", ev.Err != nil),
	)
	o.hops.Add(ctx, 1, attrs)
	o.hopDur.Record(ctx, ev.Duration.Seconds(), attrs)
}

func (o *Observer) OnDispatch(ctx context.Context, ev agent.DispatchEvent) {
	attrs := metric.WithAttributes(
		attribute.String("status", string(ev.Status)),
		attribute.String("reason", string(ev.Reason)),
	)
	o.dispatches.Add(ctx, 1, attrs)
	o.dispatchDur.Record(ctx, ev.Duration.Seconds(), attrs)
}

func (o *Observer) OnEscalation(ctx context.Context, rec agent.EscalationRecord) {
	o.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(rec.Reason))))
}
