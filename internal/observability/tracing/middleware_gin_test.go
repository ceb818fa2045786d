package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := obscontext.WithRequestID(c.Request.Context(), "req-1")
		if creatorID := c.Param("creator_id"); creatorID != "" {
			ctx = obscontext.WithCreatorID(ctx, creatorID)
		}
		c.Request = c.Request.WithContext(ctx)
	})
	r.Use(GinMiddleware())
	return r, recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsPayoutWrites(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.POST("/payouts/:id/sent", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/payouts/42/sent", nil)
	req.Header.Set(correlationIDHeader, "corr-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "corr-7", w.Header().Get(correlationIDHeader))
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "creatorpay.http POST /payouts/:id/sent", spans[0].Name())

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "42", attrs["creatorpay.payout_id"].AsString())
	assert.True(t, attrs["creatorpay.money_write"].AsBool())
	assert.Equal(t, "req-1", attrs["creatorpay.request_id"].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareTagsCreatorAndMarksServerErrors(t *testing.T) {
	r, recorder := newTracedEngine(t)
	r.GET("/creators/:creator_id/balance", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/creators/c-9/balance", nil))

	assert.NotEmpty(t, w.Header().Get(correlationIDHeader))
	spans := recorder.Ended()
	require.Len(t, spans, 1)

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "c-9", attrs["creatorpay.creator_id"].AsString())
	assert.False(t, attrs["creatorpay.money_write"].AsBool())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
