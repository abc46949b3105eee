package mapview

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

type flight struct {
	Target   orb.Point
	Zoom     int
	Animated bool
}

// fakeSurface records every boundary call. Markers at keys listed in hidden
// start collapsed in a cluster; Reveal makes them visible after revealPolls
// failed visibility checks, or never when stuck is set.
type fakeSurface struct {
	live        map[string]*Marker
	added       []string
	removed     []string
	shown       map[string][]Content
	flights     []flight
	hidden      map[Key]bool
	revealed    map[string]bool
	pending     map[string]int
	revealPolls int
	reveals     int
	stuck       bool
	heatAdded   []*HeatLayer
	heatRemoved []*HeatLayer
	invalidated int
	failAdd     map[Key]bool
	flyErr      error
	zoom        int

	// clusterAbove hides every hidden marker again when a flight lands
	// below this zoom.
	clusterAbove int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		live:     make(map[string]*Marker),
		shown:    make(map[string][]Content),
		hidden:   make(map[Key]bool),
		revealed: make(map[string]bool),
		pending:  make(map[string]int),
		failAdd:  make(map[Key]bool),
	}
}

func (s *fakeSurface) AddMarker(m *Marker) error {
	if s.failAdd[m.Key] {
		return fmt.Errorf("layer rejected %s", m.Key)
	}
	s.live[m.ID] = m
	s.added = append(s.added, m.ID)
	return nil
}

func (s *fakeSurface) RemoveMarker(m *Marker) {
	delete(s.live, m.ID)
	s.removed = append(s.removed, m.ID)
}

func (s *fakeSurface) ShowContent(m *Marker, content Content) {
	s.shown[m.ID] = append(s.shown[m.ID], content)
}

func (s *fakeSurface) FlyTo(_ context.Context, target orb.Point, zoom int, animated bool) error {
	if s.flyErr != nil {
		return s.flyErr
	}
	s.flights = append(s.flights, flight{Target: target, Zoom: zoom, Animated: animated})
	s.zoom = zoom
	if zoom < s.clusterAbove {
		s.revealed = make(map[string]bool)
	}
	return nil
}

func (s *fakeSurface) Zoom() int { return s.zoom }

func (s *fakeSurface) IsVisible(m *Marker) bool {
	if _, ok := s.live[m.ID]; !ok {
		return false
	}
	if !s.hidden[m.Key] {
		return true
	}
	if !s.revealed[m.ID] || s.stuck {
		return false
	}
	if s.pending[m.ID] > 0 {
		s.pending[m.ID]--
		return false
	}
	return true
}

func (s *fakeSurface) Reveal(_ context.Context, m *Marker) error {
	s.reveals++
	s.revealed[m.ID] = true
	if s.clusterAbove > s.zoom {
		s.zoom = s.clusterAbove
	}
	s.pending[m.ID] = s.revealPolls
	return nil
}

func (s *fakeSurface) AddHeatLayer(layer *HeatLayer) error {
	s.heatAdded = append(s.heatAdded, layer)
	return nil
}

func (s *fakeSurface) RemoveHeatLayer(layer *HeatLayer) {
	s.heatRemoved = append(s.heatRemoved, layer)
}

func (s *fakeSurface) Invalidate() { s.invalidated++ }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func ts(value string) time.Time {
	parsed, ok := ParseTimestamp(value)
	if !ok {
		panic("bad timestamp " + value)
	}
	return parsed
}

func rec(id, kind, urgency string, lat, lng float64, createdAt string) Record {
	return Record{
		ID:           id,
		Type:         kind,
		Status:       "Pending",
		Urgency:      urgency,
		Latitude:     lat,
		Longitude:    lng,
		Description:  "description " + id,
		ReporterName: "reporter " + id,
		CreatedAt:    ts(createdAt),
		CreatedAtRaw: createdAt,
	}
}
