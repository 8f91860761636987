package instrument

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"survey-backend/internal/logger"
)

// Context keys
type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter interface defines the tracing API.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span interface represents a timed operation span.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// verdictRecorder and saveRecorder are optional domain counters an
// Instrumenter may also implement.
type verdictRecorder interface {
	RecordVerdict(severity, outcome string)
}

type saveRecorder interface {
	RecordSave(state string)
}

func newUUID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// WithUserID sets the user ID in the context for instrumentation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user ID set by the middleware, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// RecordVerdict counts one rule verdict against the context's instrumenter.
func RecordVerdict(ctx context.Context, severity, outcome string) {
	if r, ok := GetInstrumenter(ctx).(verdictRecorder); ok {
		r.RecordVerdict(severity, outcome)
	}
}

// RecordSave counts one save attempt by its final state.
func RecordSave(ctx context.Context, state string) {
	if r, ok := GetInstrumenter(ctx).(saveRecorder); ok {
		r.RecordSave(state)
	}
}

// PromInstrumenter turns spans into histogram observations and business
// events into counters. Span details go to the debug log.
type PromInstrumenter struct {
	metrics *Metrics
	log     *logger.Logger
}

func NewInstrumenter(m *Metrics, log *logger.Logger) *PromInstrumenter {
	if log == nil {
		log = logger.Nop()
	}
	return &PromInstrumenter{metrics: m, log: log}
}

// StartSpan creates a new span and returns the updated context.
func (i *PromInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	span := &SpanImpl{
		traceID:      GetTraceID(ctx),
		spanID:       newUUID(),
		parentSpanID: getParentSpanID(ctx),
		source:       source,
		component:    component,
		action:       action,
		startTime:    time.Now(),
		metadata:     make(map[string]any),
		metrics:      i.metrics,
		log:          i.log,
	}
	// Child spans reference this span as parent
	return withParentSpanID(ctx, span.spanID), span
}

// EmitBusinessEvent counts a one-shot business event.
func (i *PromInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	i.metrics.businessEvents.WithLabelValues(action, entity).Inc()
	kv := []any{"trace_id", GetTraceID(ctx), "user_id", GetUserID(ctx), "action", action, "entity", entity, "record_id", recordID}
	i.log.Debug("business event", appendSorted(kv, metadata)...)
}

func (i *PromInstrumenter) RecordVerdict(severity, outcome string) {
	i.metrics.verdicts.WithLabelValues(severity, outcome).Inc()
}

func (i *PromInstrumenter) RecordSave(state string) {
	i.metrics.saves.WithLabelValues(state).Inc()
}

// SpanImpl implements the Span interface with timing and metadata.
type SpanImpl struct {
	traceID      string
	spanID       string
	parentSpanID string
	source       string
	component    string
	action       string
	entity       string
	recordID     string
	status       string
	startTime    time.Time
	metadata     map[string]any
	metrics      *Metrics
	log          *logger.Logger
	mu           sync.Mutex
	ended        bool
}

func (s *SpanImpl) TraceID() string { return s.traceID }
func (s *SpanImpl) SpanID() string  { return s.spanID }

func (s *SpanImpl) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *SpanImpl) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *SpanImpl) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = entity
	s.recordID = recordID
}

// End observes the span duration once. Later calls do nothing.
func (s *SpanImpl) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	status := s.status
	if status == "" {
		status = "unset"
	}
	elapsed := time.Since(s.startTime)
	s.metrics.spanDuration.
		WithLabelValues(s.source, s.component, s.action, status).
		Observe(elapsed.Seconds())

	kv := []any{
		"trace_id", s.traceID,
		"span_id", s.spanID,
		"parent_span_id", s.parentSpanID,
		"source", s.source,
		"component", s.component,
		"action", s.action,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	}
	if s.entity != "" {
		kv = append(kv, "entity", s.entity, "record_id", s.recordID)
	}
	s.log.Debug("span ended", appendSorted(kv, s.metadata)...)
}

// appendSorted appends m to kv as key/value pairs in key order.
func appendSorted(kv []any, m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, m[k])
	}
	return kv
}
