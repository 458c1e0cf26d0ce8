package api

import (
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	idempotencyInProgress = "in-progress"
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response for a repeated Idempotency-Key.
// Keys are scoped to the caller's tenant. A key whose first request is still
// running gets 409; that marker only lives for lockTTL so a crashed request
// does not hold the key for the full ttl.
func Idempotency(store kv.Store, ttl, lockTTL time.Duration, log *logger.Logger) gin.HandlerFunc {
	if lockTTL <= 0 || (ttl > 0 && lockTTL > ttl) {
		lockTTL = ttl
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > 200 {
			abortWithError(c, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}
		p, ok := mustPrincipal(c)
		if !ok {
			return
		}
		storeKey := "idem:" + p.TenantID.Hex() + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key
		ctx := c.Request.Context()

		if raw, found, err := store.Get(ctx, storeKey); err != nil {
			log.Warn("Idempotency lookup failed", "error", err)
		} else if found {
			if raw == idempotencyInProgress {
				abortWithError(c, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
				return
			}
			var prev storedResponse
			if err := json.Unmarshal([]byte(raw), &prev); err == nil {
				c.Header("Idempotent-Replay", "true")
				c.Data(prev.Status, "application/json; charset=utf-8", prev.Body)
				c.Abort()
				return
			}
		}

		claimed, err := store.SetNX(ctx, storeKey, idempotencyInProgress, lockTTL)
		if err != nil {
			log.Warn("Idempotency claim failed", "error", err)
			c.Next()
			return
		}
		if !claimed {
			abortWithError(c, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		// The outcome is recorded even when the client has disconnected.
		ctx = context.WithoutCancel(ctx)
		status := rec.Status()
		if status < 200 || status >= 300 {
			// Failed requests may be retried with the same key.
			if err := store.Delete(ctx, storeKey); err != nil {
				log.Warn("Idempotency release failed", "error", err)
			}
			return
		}
		raw, err := json.Marshal(storedResponse{Status: status, Body: rec.buf.Bytes()})
		if err == nil {
			err = store.Set(ctx, storeKey, string(raw), ttl)
		}
		if err != nil {
			log.Warn("Idempotency store failed", "error", err)
		}
	}
}
