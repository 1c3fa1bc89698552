package app

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hardware_ledger/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func idemRouter(calls *int32, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	store := session.NewMemoryResponseStore()
	r.POST("/issues", Idempotent(store, time.Minute, zap.NewNop()), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, H{"call": n})
	})
	return r
}

func post(r *gin.Engine, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/issues", nil)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	var calls int32
	r := idemRouter(&calls, http.StatusCreated)

	w := post(r, "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = post(r, "abc")
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestIdempotent_ReplaysSuccess(t *testing.T) {
	var calls int32
	r := idemRouter(&calls, http.StatusCreated)

	first := post(r, "req-1")
	second := post(r, "req-1")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a different id runs the handler again
	post(r, "req-2")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// no id, no dedupe
	post(r, "")
	post(r, "")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestIdempotent_FailuresAreNotCached(t *testing.T) {
	var calls int32
	r := idemRouter(&calls, http.StatusBadRequest)

	post(r, "req-1")
	w := post(r, "req-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotent_ScopedPerOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls int32
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Set(CtxUserID, c.GetHeader("X-Operator"))
		c.Next()
	})
	store := session.NewMemoryResponseStore()
	r.POST("/issues", Idempotent(store, time.Minute, zap.NewNop()), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, H{"call": n, "operator": c.GetString(CtxUserID)})
	})

	send := func(operator string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/issues", nil)
		req.Header.Set(RequestIDHeader, "shared-id")
		req.Header.Set("X-Operator", operator)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	alice := send("u-alice")
	bob := send("u-bob")
	assert.Equal(t, http.StatusCreated, bob.Code)
	assert.Empty(t, bob.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, `{"call":2,"operator":"u-bob"}`, bob.Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	again := send("u-alice")
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, alice.Body.String(), again.Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
