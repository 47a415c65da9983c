package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// ClientIDHeader names the calling client application.
	ClientIDHeader = "X-Client-ID"
	// DeviceIDHeader names the caller's device.
	DeviceIDHeader = "X-Device-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// EntityIDKey is the context key for the authenticated entity ID
	EntityIDKey = "entity_id"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	EntityID  string
	ClientID  string
	DeviceID  string
	IP        string
	UserAgent string
}

// Exchange returns the caller description recorded with exchange attempts.
func (r *RequestContext) Exchange() domain.RequestContext {
	if r == nil {
		return domain.RequestContext{}
	}
	return domain.RequestContext{ClientID: r.ClientID, Source: r.IP}
}

// EnrichContext adds trace ID and request context to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			// Prefer the span started by otelgin so logs and traces line up.
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		reqCtx := &RequestContext{
			TraceID:   traceID,
			ClientID:  strings.TrimSpace(c.GetHeader(ClientIDHeader)),
			DeviceID:  strings.TrimSpace(c.GetHeader(DeviceIDHeader)),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Set(requestContextKey, reqCtx)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
