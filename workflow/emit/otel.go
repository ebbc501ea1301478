package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter bridges the event stream to OpenTelemetry spans.
//
// Each event becomes a span named after the event:
//   - Attributes: channel, execution id, node id, timestamp tick, and all
//     primitive Data fields prefixed "workflow.data."
//   - Status: set to error when Data carries an "error" string
//
// Spans are ended immediately; events represent points in time, not
// durations. Span export batching is the tracer provider's concern.
//
// Usage:
//
//	tracer := otel.Tracer("flowmaestro")
//	emitter := emit.NewOTelEmitter(tracer)
//	engine := workflow.NewEngine(executor, workflow.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter that records each event as a span on the
// given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends one span for the event.
func (o *OTelEmitter) Emit(event Event) {
	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(context.Background(), event.Event)
	defer span.End()

	span.SetAttributes(
		attribute.String("workflow.channel", event.Channel),
		attribute.String("workflow.execution_id", event.ExecutionID),
		attribute.Int64("workflow.timestamp", event.Timestamp),
	)
	if event.NodeID != "" {
		span.SetAttributes(attribute.String("workflow.node_id", event.NodeID))
	}
	for key, value := range event.Data {
		setDataAttribute(span, "workflow.data."+key, value)
	}

	if msg, ok := event.Data["error"].(string); ok && msg != "" {
		span.SetStatus(codes.Error, msg)
		span.RecordError(fmt.Errorf("%s", msg))
	}
}

// setDataAttribute records one primitive payload field. Composite values are
// rendered with %v rather than dropped.
func setDataAttribute(span trace.Span, key string, value any) {
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}
