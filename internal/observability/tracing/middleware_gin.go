package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	"github.com/smallbiznis/creatorpay/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	httpTracerName      = "creatorpay/http"
	correlationIDHeader = "X-Correlation-Id"
)

// GinMiddleware opens a server span per request. The correlation id it
// settles on is echoed back and later stamped onto outbox events, so a
// payment webhook can be followed to the payout that paid it out.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(httpTracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, correlationID := correlation.EnsureCorrelationID(ctx)
		c.Header(correlationIDHeader, correlationID)

		ctx, span := tracer.Start(ctx, "creatorpay.http "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		ctx = withRequestBaggage(ctx)
		span.SetAttributes(requestAttributes(ctx, correlationID)...)

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("creatorpay.http " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.Bool("creatorpay.money_write", isMoneyWrite(c.Request.Method, route)),
		)...)
		if payoutID := payoutIDParam(c, route); payoutID != "" {
			span.SetAttributes(attribute.String("creatorpay.payout_id", payoutID))
		}

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}
}

func requestAttributes(ctx context.Context, correlationID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("creatorpay.correlation_id", correlationID)}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("creatorpay.request_id", requestID))
	}
	if creatorID := obscontext.CreatorIDFromContext(ctx); creatorID != "" {
		attrs = append(attrs, attribute.String("creatorpay.creator_id", creatorID))
	}
	return attrs
}

// withRequestBaggage forwards the request and creator ids to outbound calls
// such as processor transfers and webhook deliveries.
func withRequestBaggage(ctx context.Context) context.Context {
	bag := baggage.FromContext(ctx)
	for key, value := range map[string]string{
		"request_id": obscontext.RequestIDFromContext(ctx),
		"creator_id": obscontext.CreatorIDFromContext(ctx),
	} {
		if value == "" {
			continue
		}
		member, err := baggage.NewMember(key, value)
		if err != nil {
			continue
		}
		if next, err := bag.SetMember(member); err == nil {
			bag = next
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// isMoneyWrite reports whether the route books ledger entries or moves a
// payout between states.
func isMoneyWrite(method, route string) bool {
	if method != http.MethodPost {
		return false
	}
	return strings.HasPrefix(route, "/internal/") || strings.HasPrefix(route, "/payouts")
}

func payoutIDParam(c *gin.Context, route string) string {
	if !strings.HasPrefix(route, "/payouts/:id") {
		return ""
	}
	return c.Param("id")
}
