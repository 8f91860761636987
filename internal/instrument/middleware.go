package instrument

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/metadata"
)

// TraceHeader carries the trace id in and out of every request.
const TraceHeader = "X-Trace-ID"

// Middleware returns a Fiber middleware that sets up tracing for each request.
// It propagates or generates a trace ID, opens a root HTTP span and injects the
// instrumenter into the request context for downstream handlers. A nil inst
// still propagates trace ids but records nothing.
func Middleware(inst Instrumenter) fiber.Handler {
	if inst == nil {
		inst = &NoopInstrumenter{}
	}
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := WithTraceID(c.UserContext(), traceID)
		ctx = WithInstrumenter(ctx, inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set(TraceHeader, traceID)

		err := c.Next()

		// Auth middleware runs downstream, so the user is known only now.
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}

		statusCode := c.Response().StatusCode()
		if err != nil {
			statusCode = errorStatus(err)
		}
		span.SetMetadata("status_code", statusCode)
		if statusCode >= fiber.StatusBadRequest {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}

// errorStatus is the status the app error handler will answer err with.
func errorStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	return fiber.StatusInternalServerError
}
