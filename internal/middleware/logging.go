// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/metrics"
	"github.com/javajoker/healthfirst-backend/internal/models"
)

// AuditWriter persists audit rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// redactedFields never reach the audit table; they carry whole documents.
var redactedFields = map[string]bool{
	"file":        true,
	"file_base64": true,
}

// RequestLogger attaches a request-scoped logrus entry to the request
// context and counts the request once it completes.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
		})
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), entry))

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		fields := logrus.Fields{
			"status":   status,
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		requestEntry := logger.FromContext(c.Request.Context()).WithFields(fields)
		switch {
		case status >= 500:
			requestEntry.Error("Request failed")
		case status >= 400:
			requestEntry.Warn("Request rejected")
		default:
			requestEntry.Info("Request processed")
		}
	}
}

// withUser adds the authenticated user to the request-scoped logger.
func withUser(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	c.Request = c.Request.WithContext(logger.WithContext(ctx, logger.FromContext(ctx).WithField("user_id", userID)))
}

// AuditLogMiddleware records mutating requests once they complete.
func AuditLogMiddleware(writer AuditWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for reads and health checks
		if c.Request.Method == "GET" || c.Request.Method == "OPTIONS" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		c.Next()

		var userUUID *uuid.UUID
		if userID, ok := c.Get("user_id"); ok {
			if uid, ok := userID.(string); ok {
				if parsed, err := uuid.Parse(uid); err == nil {
					userUUID = &parsed
				}
			}
		}

		var requestData map[string]interface{}
		if len(requestBody) > 0 {
			if err := json.Unmarshal(requestBody, &requestData); err == nil {
				redact(requestData)
			}
		}

		auditLog := &models.AuditLog{
			UserID:       userUUID,
			Action:       c.Request.Method + " " + c.FullPath(),
			ResourceType: extractResourceType(c.Request.URL.Path),
			NewValues:    models.JSONB(requestData),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}

		if resourceID := extractResourceID(c.Request.URL.Path); resourceID != "" {
			if parsed, err := uuid.Parse(resourceID); err == nil {
				auditLog.ResourceID = &parsed
			}
		}

		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			if err := writer.CreateAuditLog(ctx, auditLog); err != nil {
				logger.FromContext(ctx).WithError(err).Error("Failed to create audit log")
			}
		}()
	}
}

func redact(values map[string]interface{}) {
	for key, value := range values {
		if redactedFields[key] {
			values[key] = "[redacted]"
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			redact(nested)
		}
	}
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" {
		return parts[1]
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func extractResourceID(path string) string {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}
