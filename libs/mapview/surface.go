package mapview

import (
	"context"

	"github.com/paulmach/orb"
)

// Surface is the rendering side of the map. The engine never draws; it asks
// the surface to add and remove markers, move the viewport and show content.
// Implementations are only called while the owning Map holds its lock.
type Surface interface {
	// AddMarker attaches the marker to the clustering layer.
	AddMarker(m *Marker) error
	// RemoveMarker detaches the marker and drops any detail view it had open.
	RemoveMarker(m *Marker)
	// ShowContent replaces the marker's detail view.
	ShowContent(m *Marker, content Content)
	// FlyTo pans and zooms the viewport.
	FlyTo(ctx context.Context, target orb.Point, zoom int, animated bool) error
	// Zoom returns the current zoom level, including any change made by
	// Reveal.
	Zoom() int
	// IsVisible reports whether the marker is drawn on its own rather than
	// collapsed into a cluster.
	IsVisible(m *Marker) bool
	// Reveal starts expanding whatever cluster hides the marker. It may
	// return before the expansion finishes.
	Reveal(ctx context.Context, m *Marker) error
	AddHeatLayer(layer *HeatLayer) error
	RemoveHeatLayer(layer *HeatLayer)
	// Invalidate tells the surface its container changed size.
	Invalidate()
}
