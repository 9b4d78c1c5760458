package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

// Handlers attach request scoped facts (catalog cache use, compliance outcome)
// to the envelope meta through these helpers.
const (
	responseMetaKey  = "response_meta"
	metaStartKey     = "response_meta_start"
	cacheHitKey      = "cache_hit"
	compliantKey     = "compliant"
	blockingCountKey = "blocking_violations"
	processingKey    = "processing_time_ms"
)

// WithResponseMeta starts the request clock and an empty meta map.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the catalog lookup was served from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFor(c)[cacheHitKey] = hit
}

// SetComplianceOutcome records whether the checked products may be saved and
// how many violations still block the save.
func SetComplianceOutcome(c *gin.Context, result *models.ComplianceCheckResponse) {
	if result == nil {
		return
	}
	blocking := 0
	for _, v := range result.Violations {
		if v.Blocking() {
			blocking++
		}
	}
	meta := metaFor(c)
	meta[compliantKey] = result.Compliant
	meta[blockingCountKey] = blocking
}

// ExtractMeta returns the recorded meta stamped with the elapsed request
// time, or nil when the handler recorded nothing.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, ok := raw.(map[string]interface{})
	if !ok || len(meta) == 0 {
		return nil
	}
	if start, ok := c.Get(metaStartKey); ok {
		if t, ok := start.(time.Time); ok {
			meta[processingKey] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func metaFor(c *gin.Context) map[string]interface{} {
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	c.Set(responseMetaKey, meta)
	return meta
}
