package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit_WindowResets(t *testing.T) {
	app := &App{rateBuckets: make(map[string]rateBucket)}
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, app.checkRateLimit("k", 3, time.Minute, now))
	}
	assert.False(t, app.checkRateLimit("k", 3, time.Minute, now.Add(time.Second)))
	assert.True(t, app.checkRateLimit("other", 3, time.Minute, now))
	assert.True(t, app.checkRateLimit("k", 3, time.Minute, now.Add(time.Minute)))
}

func TestPruneRateLimiterState_RemovesExpiredBuckets(t *testing.T) {
	now := time.Now().UTC()
	app := &App{rateBuckets: map[string]rateBucket{
		"stale":  {start: now.Add(-upstreamRateLimitWindow), count: 8},
		"recent": {start: now.Add(-time.Second), count: 2},
	}}

	app.pruneRateLimiterState(now)

	assert.NotContains(t, app.rateBuckets, "stale")
	assert.Contains(t, app.rateBuckets, "recent")
}

func TestRateLimitedRoute_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, _ := newTestApp(t, &fakeSource{records: sampleComplaints()})
	router := app.router()

	for i := 0; i < upstreamRateLimitRequests; i++ {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/filters/options", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, router, http.MethodGet, "/api/v1/filters/options", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeAPIError(t, rec))
}
