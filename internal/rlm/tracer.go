package rlm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tracer brackets each engine iteration and each root-LM call attempt with
// spans; adapted from the teacher's agent-loop tracer abstraction so the
// RLM loop gets the same span-per-turn shape the rest of the stack uses.
type Tracer interface {
	StartIteration(ctx context.Context, runID string, index int) (context.Context, func())
	StartLMCall(ctx context.Context, runID string, model string) (context.Context, func(err error))
}

// OTELTracer emits spans via the process-wide OTel tracer provider
// configured by internal/observability.
type OTELTracer struct{}

func (OTELTracer) StartIteration(ctx context.Context, runID string, index int) (context.Context, func()) {
	ctx, span := otel.Tracer("internal/rlm").Start(ctx, "rlm.iteration")
	span.SetAttributes(attribute.String("rlm.run_id", runID), attribute.Int("rlm.iteration", index))
	return ctx, func() { span.End() }
}

func (OTELTracer) StartLMCall(ctx context.Context, runID string, model string) (context.Context, func(err error)) {
	ctx, span := otel.Tracer("internal/rlm").Start(ctx, "rlm.lm_call")
	span.SetAttributes(attribute.String("rlm.run_id", runID), attribute.String("llm.model", model))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// NullTracer discards all spans; New installs it whenever Config.Tracer is
// nil, which is the case in the tests and in cmd/ontorlm.
type NullTracer struct{}

func (NullTracer) StartIteration(ctx context.Context, runID string, index int) (context.Context, func()) {
	return ctx, func() {}
}

func (NullTracer) StartLMCall(ctx context.Context, runID string, model string) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}
