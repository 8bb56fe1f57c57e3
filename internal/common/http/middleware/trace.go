package middleware

import (
	"context"
	"strings"

	"judgehost/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey      = "trace_id"
	requestIDContextKey    = "request_id"
	submissionIDContextKey = "submission_id"
)

// TraceContextConfig controls how trace/request/submission id are extracted and written.
type TraceContextConfig struct {
	// SubmissionParam names the route parameter carrying a submission id, if any.
	SubmissionParam string
}

// TraceContextMiddleware ensures trace/request/submission id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{SubmissionParam: "id"})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.SubmissionParam != "" {
			if id := strings.TrimSpace(c.Param(cfg.SubmissionParam)); id != "" {
				c.Set(submissionIDContextKey, id)
				ctx = context.WithValue(ctx, contextkey.SubmissionID, id)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
