package instrument

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
)

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	inst := GetInstrumenter(context.Background())
	_, ok := inst.(*NoopInstrumenter)
	assert.True(t, ok)

	// Recording without an instrumenter must not panic.
	RecordVerdict(context.Background(), "ERROR", "matched")
	RecordSave(context.Background(), "PERSISTED")
}

func TestSpan_ObservesOnceWithStatus(t *testing.T) {
	m := NewMetrics()
	inst := NewInstrumenter(m, nil)
	ctx := WithTraceID(context.Background(), "trace-1")

	ctx, span := inst.StartSpan(ctx, "engine", "editing", "rules.evaluate")
	assert.Equal(t, "trace-1", span.TraceID())
	assert.Equal(t, span.SpanID(), getParentSpanID(ctx))

	span.SetStatus("ok")
	span.End()
	span.End()

	assert.Equal(t, 1, testutil.CollectAndCount(m.spanDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.spanDuration, "survey_span_duration_seconds"))
}

func TestRecorders_CountThroughContext(t *testing.T) {
	m := NewMetrics()
	ctx := WithInstrumenter(context.Background(), NewInstrumenter(m, nil))

	RecordVerdict(ctx, "WARNING", "matched")
	RecordVerdict(ctx, "WARNING", "matched")
	RecordVerdict(ctx, "ERROR", "failed")
	RecordSave(ctx, "PENDING_CONFIRMATION")
	GetInstrumenter(ctx).EmitBusinessEvent(ctx, "record.saved", "collection_record", "r1", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.verdicts.WithLabelValues("WARNING", "matched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.verdicts.WithLabelValues("ERROR", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.saves.WithLabelValues("PENDING_CONFIRMATION")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.businessEvents.WithLabelValues("record.saved", "collection_record")))
}

func TestMiddleware_PropagatesTraceID(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(Middleware(NewInstrumenter(m, nil)))
	app.Get("/ping", func(c *fiber.Ctx) error {
		c.Locals("user", &metadata.UserContext{ID: "u1"})
		return c.SendString(GetTraceID(c.UserContext()))
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(TraceHeader, "abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "abc", string(body))
	assert.Equal(t, "abc", resp.Header.Get(TraceHeader))

	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(TraceHeader))

	assert.Equal(t, 1, testutil.CollectAndCount(m.spanDuration))
}

type statusErr struct{}

func (statusErr) Error() string   { return "rejected" }
func (statusErr) HTTPStatus() int { return 422 }

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, 404, errorStatus(fiber.ErrNotFound))
	assert.Equal(t, 422, errorStatus(statusErr{}))
	assert.Equal(t, 500, errorStatus(io.EOF))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	NewInstrumenter(m, nil).RecordSave("PERSISTED")

	app := fiber.New()
	app.Get("/metrics", m.Handler())
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), `survey_saves_total{state="PERSISTED"} 1`), string(body))
}

func TestSpan_EndLogsDetails(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	inst := NewInstrumenter(NewMetrics(), &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "u1")
	ctx, parent := inst.StartSpan(ctx, "http", "handler", "request")
	_, child := inst.StartSpan(ctx, "engine", "collect", "round.save")
	child.SetEntity("roster_record", "rr-1")
	child.SetMetadata("degree", 2)
	child.SetStatus("ok")
	child.End()

	inst.EmitBusinessEvent(ctx, "record.saved", "collection_record", "cr-1", map[string]any{"warnings": 1})

	entries := logs.All()
	require.Len(t, entries, 2)

	span := entries[0].ContextMap()
	assert.Equal(t, "span ended", entries[0].Message)
	assert.Equal(t, "trace-1", span["trace_id"])
	assert.Equal(t, parent.SpanID(), span["parent_span_id"])
	assert.Equal(t, child.SpanID(), span["span_id"])
	assert.Equal(t, "round.save", span["action"])
	assert.Equal(t, "ok", span["status"])
	assert.Equal(t, "roster_record", span["entity"])
	assert.Equal(t, "rr-1", span["record_id"])
	assert.EqualValues(t, 2, span["degree"])

	event := entries[1].ContextMap()
	assert.Equal(t, "business event", entries[1].Message)
	assert.Equal(t, "u1", event["user_id"])
	assert.Equal(t, "cr-1", event["record_id"])
	assert.EqualValues(t, 1, event["warnings"])
}
