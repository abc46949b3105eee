package main

import (
	"context"
	"math"
	"sync"
	"time"

	"complaintmap/libs/mapview"

	"github.com/paulmach/orb"
)

// viewSurface is a headless map: it keeps the viewport, the clustering layer,
// open detail views and the heat layer so that clients can render them.
type viewSurface struct {
	mu sync.RWMutex

	center          orb.Point
	zoom            int
	minZoom         int
	maxZoom         int
	clusterRadiusPx float64
	width           int
	height          int

	order    []string
	markers  map[string]*mapview.Marker
	contents map[string]mapview.Content
	heat     *mapview.HeatLayer

	// sizes caches, per zoom, the size of the cluster each marker falls in.
	sizes map[int]map[string]int

	lastFlight    *flightRecord
	invalidatedAt time.Time
}

type flightRecord struct {
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Zoom     int       `json:"zoom"`
	Animated bool      `json:"animated"`
	At       time.Time `json:"at"`
}

type surfaceOptions struct {
	Center          orb.Point
	Zoom            int
	MaxZoom         int
	ClusterRadiusPx float64
	Width           int
	Height          int
}

func newViewSurface(opts surfaceOptions) *viewSurface {
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = 20
	}
	if opts.ClusterRadiusPx <= 0 {
		opts.ClusterRadiusPx = 80
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	return &viewSurface{
		center:          opts.Center,
		zoom:            clampInt(opts.Zoom, 0, opts.MaxZoom),
		maxZoom:         opts.MaxZoom,
		clusterRadiusPx: opts.ClusterRadiusPx,
		width:           opts.Width,
		height:          opts.Height,
		markers:         make(map[string]*mapview.Marker),
		contents:        make(map[string]mapview.Content),
		sizes:           make(map[int]map[string]int),
	}
}

func (s *viewSurface) AddMarker(m *mapview.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.markers[m.ID] = m
	s.sizes = make(map[int]map[string]int)
	return nil
}

func (s *viewSurface) RemoveMarker(m *mapview.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.ID]; !ok {
		return
	}
	delete(s.markers, m.ID)
	delete(s.contents, m.ID)
	s.sizes = make(map[int]map[string]int)
	for i, id := range s.order {
		if id == m.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *viewSurface) ShowContent(m *mapview.Marker, content mapview.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.ID]; !ok {
		return
	}
	s.contents[m.ID] = content
}

func (s *viewSurface) FlyTo(ctx context.Context, target orb.Point, zoom int, animated bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = target
	s.zoom = clampInt(zoom, s.minZoom, s.maxZoom)
	s.lastFlight = &flightRecord{Lat: target.Lat(), Lng: target.Lon(), Zoom: s.zoom, Animated: animated, At: time.Now().UTC()}
	return nil
}

func (s *viewSurface) Zoom() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

func (s *viewSurface) IsVisible(m *mapview.Marker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soloAtLocked(m.ID, s.zoom)
}

// Reveal zooms to the lowest level at which the marker stands alone and
// centers on it, like a cluster layer's zoom-to-show behaviour.
func (s *viewSurface) Reveal(ctx context.Context, m *mapview.Marker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.ID]; !ok {
		return mapview.ErrMarkerNotFound
	}
	zoom := s.maxZoom
	for z := s.zoom; z < s.maxZoom; z++ {
		if s.soloAtLocked(m.ID, z) {
			zoom = z
			break
		}
	}
	s.zoom = zoom
	s.center = m.Position()
	return nil
}

func (s *viewSurface) AddHeatLayer(layer *mapview.HeatLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heat = layer
	return nil
}

func (s *viewSurface) RemoveHeatLayer(layer *mapview.HeatLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heat == layer {
		s.heat = nil
	}
}

func (s *viewSurface) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidatedAt = time.Now().UTC()
}

// SetViewport applies a manual pan or zoom by the user.
func (s *viewSurface) SetViewport(center orb.Point, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = center
	s.zoom = clampInt(zoom, s.minZoom, s.maxZoom)
}

// SetSize records a new container size in pixels.
func (s *viewSurface) SetSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width > 0 {
		s.width = width
	}
	if height > 0 {
		s.height = height
	}
}

// soloAtLocked reports whether the marker forms a cluster of its own at
// zoom. At the maximum zoom clustering is disabled.
func (s *viewSurface) soloAtLocked(id string, zoom int) bool {
	if _, ok := s.markers[id]; !ok {
		return false
	}
	if zoom >= s.maxZoom {
		return true
	}
	sizes, ok := s.sizes[zoom]
	if !ok {
		sizes = make(map[string]int, len(s.order))
		for _, c := range clusterAtZoom(s.inputsLocked(), zoom, s.clusterRadiusPx) {
			for _, member := range c.markerIDs {
				sizes[member] = len(c.markerIDs)
			}
		}
		s.sizes[zoom] = sizes
	}
	return sizes[id] == 1
}

func (s *viewSurface) inputsLocked() []clusterInput {
	inputs := make([]clusterInput, 0, len(s.order))
	for _, id := range s.order {
		inputs = append(inputs, clusterInput{id: id, position: s.markers[id].Position()})
	}
	return inputs
}

type boundsView struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type clusterView struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Count     int      `json:"count"`
	MarkerIDs []string `json:"marker_ids"`
}

type surfaceView struct {
	Center        boundsCenter               `json:"center"`
	Zoom          int                        `json:"zoom"`
	Width         int                        `json:"width"`
	Height        int                        `json:"height"`
	Bounds        boundsView                 `json:"bounds"`
	Clusters      []clusterView              `json:"clusters"`
	Contents      map[string]mapview.Content `json:"contents"`
	Heat          *mapview.HeatLayer         `json:"heat,omitempty"`
	LastFlight    *flightRecord              `json:"last_flight,omitempty"`
	InvalidatedAt *time.Time                 `json:"invalidated_at,omitempty"`
}

type boundsCenter struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// View renders the current viewport, clusters and detail views.
func (s *viewSurface) View() surfaceView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bound := s.boundLocked()
	view := surfaceView{
		Center:   boundsCenter{Lat: s.center.Lat(), Lng: s.center.Lon()},
		Zoom:     s.zoom,
		Width:    s.width,
		Height:   s.height,
		Bounds:   boundsView{South: bound.Bottom(), West: bound.Left(), North: bound.Top(), East: bound.Right()},
		Clusters: []clusterView{},
		Contents: make(map[string]mapview.Content, len(s.contents)),
		Heat:     s.heat,
	}
	if s.zoom >= s.maxZoom {
		for _, in := range s.inputsLocked() {
			view.Clusters = append(view.Clusters, clusterView{Lat: in.position.Lat(), Lng: in.position.Lon(), Count: 1, MarkerIDs: []string{in.id}})
		}
	} else {
		for _, c := range clusterAtZoom(s.inputsLocked(), s.zoom, s.clusterRadiusPx) {
			center := c.center(s.zoom)
			view.Clusters = append(view.Clusters, clusterView{
				Lat:       center.Lat(),
				Lng:       center.Lon(),
				Count:     len(c.markerIDs),
				MarkerIDs: append([]string(nil), c.markerIDs...),
			})
		}
	}
	for id, content := range s.contents {
		view.Contents[id] = content
	}
	if s.lastFlight != nil {
		flight := *s.lastFlight
		view.LastFlight = &flight
	}
	if !s.invalidatedAt.IsZero() {
		at := s.invalidatedAt
		view.InvalidatedAt = &at
	}
	return view
}

// boundLocked is the geographic box covered by the container at the
// current center and zoom.
func (s *viewSurface) boundLocked() orb.Bound {
	c := projectPixel(s.center, s.zoom)
	halfW, halfH := float64(s.width)/2, float64(s.height)/2
	nw := unprojectPixel(orb.Point{c.X() - halfW, c.Y() - halfH}, s.zoom)
	se := unprojectPixel(orb.Point{c.X() + halfW, c.Y() + halfH}, s.zoom)
	return orb.MultiPoint{nw, se}.Bound()
}

func clampInt(value, lo, hi int) int {
	return int(math.Max(float64(lo), math.Min(float64(hi), float64(value))))
}
