package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	upstreamRateLimitRequests  = 30
	upstreamRateLimitWindow    = time.Minute
	rateLimiterCleanupInterval = time.Minute
)

type rateBucket struct {
	start time.Time
	count int
}

// checkRateLimit counts a request against key in a fixed window.
func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

// rateLimited guards routes that reach the complaint source, per client IP.
func (a *App) rateLimited(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.checkRateLimit(scope+":"+c.ClientIP(), upstreamRateLimitRequests, upstreamRateLimitWindow, time.Now()) {
			writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many requests, try again shortly"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) startRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= upstreamRateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
}
