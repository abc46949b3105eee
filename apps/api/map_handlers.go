package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"complaintmap/libs/mapview"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

type sessionResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Map       mapview.Snapshot `json:"map"`
	View      surfaceView      `json:"view"`
}

type createSessionPayload struct {
	Filter *mapview.Filter `json:"filter"`
}

type advancePayload struct {
	Direction int `json:"direction"`
}

type viewportPayload struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Zoom *int     `json:"zoom"`
}

type resizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (a *App) registerMapRoutes(api *gin.RouterGroup) {
	upstream := a.rateLimited("upstream")
	api.GET("/complaints", upstream, a.complaintsHandler)
	api.GET("/filters/options", upstream, a.filterOptionsHandler)

	sessions := api.Group("/sessions")
	{
		sessions.POST("", upstream, a.createSessionHandler)
		sessions.GET("/:id", a.getSessionHandler)
		sessions.DELETE("/:id", a.deleteSessionHandler)
		sessions.POST("/:id/filters", a.setFilterHandler)
		sessions.POST("/:id/refresh", upstream, a.refreshSessionHandler)
		sessions.POST("/:id/markers/:marker/click", a.clickMarkerHandler)
		sessions.POST("/:id/markers/:marker/advance", a.advanceMarkerHandler)
		sessions.POST("/:id/heat/toggle", a.toggleHeatHandler)
		sessions.POST("/:id/viewport", a.viewportHandler)
		sessions.POST("/:id/resize", a.resizeHandler)
		sessions.GET("/:id/export", a.exportSessionHandler)
	}
}

func (a *App) complaintsHandler(c *gin.Context) {
	records, err := a.fetchComplaints(c.Request.Context())
	if err != nil {
		writeAPIError(c, sourceAPIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaints": records})
}

func (a *App) filterOptionsHandler(c *gin.Context) {
	records, err := a.fetchComplaints(c.Request.Context())
	if err != nil {
		writeAPIError(c, sourceAPIError(err))
		return
	}
	c.JSON(http.StatusOK, mapview.Choices(records))
}

func (a *App) createSessionHandler(c *gin.Context) {
	var body createSessionPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
			return
		}
	}

	s := a.newMapSession()
	ctx := c.Request.Context()
	if body.Filter != nil {
		s.view.SetFilter(ctx, *body.Filter)
	}
	// A failed first load is reported through the snapshot notice.
	_, _ = a.refreshSession(ctx, s)
	c.JSON(http.StatusCreated, a.sessionResponse(s))
}

func (a *App) getSessionHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.sessionResponse(s))
}

func (a *App) deleteSessionHandler(c *gin.Context) {
	if !a.sessions.remove(c.Param("id")) {
		writeAPIError(c, errSessionNotFound)
		return
	}
	a.metrics.sessions.Set(float64(a.sessions.count()))
	c.Status(http.StatusNoContent)
}

func (a *App) setFilterHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	var body mapview.Filter
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}
	s.view.SetFilter(c.Request.Context(), body)
	c.JSON(http.StatusOK, a.sessionResponse(s))
}

func (a *App) refreshSessionHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	if cached, ok := a.source.(*cachedComplaintSource); ok {
		cached.Invalidate()
	}
	if _, err := a.refreshSession(c.Request.Context(), s); err != nil {
		a.log.Info("manual refresh failed", "session", s.ID, "err", err)
	}
	c.JSON(http.StatusOK, a.sessionResponse(s))
}

func (a *App) clickMarkerHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	content, open, err := s.view.Click(c.Param("marker"))
	if err != nil {
		writeAPIError(c, mapAPIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"open": open, "content": content})
}

func (a *App) advanceMarkerHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	var body advancePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}
	content, err := s.view.Advance(c.Param("marker"), body.Direction)
	if err != nil {
		writeAPIError(c, mapAPIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

func (a *App) toggleHeatHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	shown, err := s.view.ToggleHeat()
	if err != nil {
		writeAPIError(c, fmt.Errorf("toggle heat overlay: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": shown, "heat": s.surface.View().Heat})
}

func (a *App) viewportHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	var body viewportPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}
	current := s.surface.View()
	lat, lng, zoom := current.Center.Lat, current.Center.Lng, current.Zoom
	if body.Lat != nil {
		lat = *body.Lat
	}
	if body.Lng != nil {
		lng = *body.Lng
	}
	if body.Zoom != nil {
		zoom = *body.Zoom
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_viewport", Message: "lat must be within [-90, 90] and lng within [-180, 180]"})
		return
	}
	s.surface.SetViewport(orb.Point{lng, lat}, zoom)
	c.JSON(http.StatusOK, a.sessionResponse(s))
}

func (a *App) resizeHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	var body resizePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}
	s.surface.SetSize(body.Width, body.Height)
	s.view.Resize()
	c.JSON(http.StatusOK, a.sessionResponse(s))
}

func (a *App) exportSessionHandler(c *gin.Context) {
	s, ok := a.sessionFromRequest(c)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if format == "" {
		format = exportFormatGeoJSON
	}
	asset, err := buildExport(format, s.view.Snapshot(), s.view.Filtered(), time.Now())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", asset.FileName))
	c.Data(http.StatusOK, asset.ContentType, asset.Body)
}

func (a *App) sessionFromRequest(c *gin.Context) (*mapSession, bool) {
	s, ok := a.sessions.get(c.Param("id"))
	if !ok {
		writeAPIError(c, errSessionNotFound)
		return nil, false
	}
	return s, true
}

func (a *App) sessionResponse(s *mapSession) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Map:       s.view.Snapshot(),
		View:      s.surface.View(),
	}
}

var errSessionNotFound = &apiError{Status: http.StatusNotFound, Code: "session_not_found", Message: "Map session not found or expired"}

func mapAPIError(err error) error {
	switch {
	case errors.Is(err, mapview.ErrUnknownMarker):
		return &apiError{Status: http.StatusNotFound, Code: "unknown_marker", Message: err.Error()}
	case errors.Is(err, mapview.ErrMarkerDetached):
		return &apiError{Status: http.StatusConflict, Code: "marker_detached", Message: err.Error()}
	case errors.Is(err, mapview.ErrInvalidDirection):
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_direction", Message: err.Error()}
	default:
		return err
	}
}

func sourceAPIError(err error) error {
	return &apiError{Status: http.StatusBadGateway, Code: "source_unavailable", Message: err.Error()}
}
