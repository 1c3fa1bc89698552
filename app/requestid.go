package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"hardware_ledger/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader     = "X-Request-ID"
	RequestIDContextKey = "request_id"
)

// RequestID takes X-Request-ID from the caller or generates one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDContextKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}

// Idempotent replays the stored response when a write is repeated with the
// same client-supplied X-Request-ID. Only 2xx responses are kept; failures
// release the key so the caller can retry. Store errors fail open.
func Idempotent(store session.ResponseStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		// 按操作员隔离，避免不同用户复用同一个 X-Request-ID
		key := c.GetString(CtxUserID) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + id

		if resp, err := store.Load(ctx, key); err == nil && resp != nil {
			replay(c, resp, logger)
			return
		}

		reserved, err := store.Reserve(ctx, key, ttl)
		if err != nil {
			logger.Warn("idempotency store unavailable", zap.String("request_id", id), zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			if resp, err := store.Load(ctx, key); err == nil && resp != nil {
				replay(c, resp, logger)
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, H{"message": "Request is already being processed."})
			return
		}

		w := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= 200 && status < 300 && json.Valid(w.body.Bytes()) {
			resp := session.StoredResponse{Status: status, Body: json.RawMessage(w.body.Bytes())}
			if err := store.Save(ctx, key, resp, ttl); err != nil {
				logger.Warn("failed to store idempotent response", zap.String("request_id", id), zap.Error(err))
			}
			return
		}
		if err := store.Release(ctx, key); err != nil {
			logger.Warn("failed to release idempotency key", zap.String("request_id", id), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, resp *session.StoredResponse, logger *zap.Logger) {
	logger.Info("Duplicate request detected, returning cached response",
		zap.String("request_id", c.GetHeader(RequestIDHeader)),
		zap.String("path", c.Request.URL.Path),
	)
	c.Header("Idempotent-Replayed", "true")
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
	c.Abort()
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
