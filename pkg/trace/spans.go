package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentChatRequest starts the span covering one streamed chat reply.
func InstrumentChatRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, "chat.request",
		trace.WithAttributes(ChatAttrs(provider, model)...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// InstrumentVoiceSession starts the span covering a live voice session from
// connect to teardown.
func InstrumentVoiceSession(ctx context.Context, model, voice, language string) (context.Context, trace.Span) {
	return StartSpan(ctx, "voice.session",
		trace.WithAttributes(VoiceAttrs(model, voice, language)...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// RecordVoiceTurn adds a completed exchange to the session span.
func RecordVoiceTurn(span trace.Span, userChars, modelChars int) {
	AddEvent(span, "voice.turn_complete",
		attribute.Int(AttrVoiceUserText, userChars),
		attribute.Int(AttrVoiceModelText, modelChars),
	)
}

// InstrumentConnection starts the span covering a transport connection.
func InstrumentConnection(ctx context.Context, connID, connType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "connection",
		trace.WithAttributes(ConnectionAttrs(connID, connType, "new")...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}
