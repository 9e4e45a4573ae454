package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "taskboard/api"
	mutationSpanName    = "mutation.request"
	mutationEventName   = "mutation.request.metrics"
	mutationEventDomain = "taskboard.api"
	observabilityEvent  = "observability.event"
)

// requestMetrics times one mutating request, records it on a span and logs
// a single structured entry when the request finishes.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	route      string
	method     string
	authDur    time.Duration
	serviceDur time.Duration
	boardID    string
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, mutationSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		method: method,
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.authDur = d
}

func (m *requestMetrics) ObserveService(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.serviceDur = d
}

func (m *requestMetrics) SetBoard(id string) {
	if m == nil || id == "" {
		return
	}
	m.boardID = id
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) attributes(status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("taskboard.mutation.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.authDur > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.mutation.auth_ms", durationToMillis(m.authDur)))
	}
	if m.serviceDur > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.mutation.service_ms", durationToMillis(m.serviceDur)))
	}
	if m.boardID != "" {
		attrs = append(attrs, attribute.String("taskboard.board_id", m.boardID))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("taskboard.mutation.error_stage", m.errorStage))
	}
	return attrs
}

// Log ends the span and emits the metrics entry.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status)
	sevText, sevNum := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", mutationEventName),
		attribute.String("event.domain", mutationEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNum),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}
	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"severity_text":   sevText,
		"severity_number": sevNum,
	}
	for _, kv := range attrs {
		fields[string(kv.Key)] = kv.Value.AsInterface()
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error(mutationEventName)
	case "WARN":
		entry.Warn(mutationEventName)
	default:
		entry.Info(mutationEventName)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	}
	return "INFO", 9
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
