package mapview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	defaultRevealTimeout   = 2 * time.Second
	revealInitialInterval  = 25 * time.Millisecond
	revealMaxPollInterval  = 400 * time.Millisecond
	defaultMatchTolerance  = 1e-6
	revealPollMultiplier   = 2.0
	revealPollRandomFactor = 0.2
)

var errNotYetVisible = errors.New("marker still clustered")

// ClusterCoordinator owns the live marker set and its membership in the
// surface's clustering layer.
type ClusterCoordinator struct {
	surface       Surface
	newID         func() string
	revealTimeout time.Duration

	markers   []*Marker
	byID      map[string]*Marker
	revealing *Marker

	// controls is handed to every presenter built by Rebuild.
	controls func(markerID string) *Controls
}

// NewClusterCoordinator returns a coordinator with no markers.
func NewClusterCoordinator(surface Surface, newID func() string, revealTimeout time.Duration) *ClusterCoordinator {
	if revealTimeout <= 0 {
		revealTimeout = defaultRevealTimeout
	}
	return &ClusterCoordinator{
		surface:       surface,
		newID:         newID,
		revealTimeout: revealTimeout,
		byID:          make(map[string]*Marker),
	}
}

// Rebuild drops every live marker and adds one new marker per group. Markers
// the surface refuses are left out of the live set; their errors are joined.
func (c *ClusterCoordinator) Rebuild(groups []*Group) error {
	c.Clear()

	var errs []error
	for _, g := range groups {
		m := &Marker{ID: c.newID(), Key: g.Key}
		newPresenter(g, m, c.surface).controls = c.controls
		if err := c.surface.AddMarker(m); err != nil {
			errs = append(errs, fmt.Errorf("add marker %s: %w", g.Key, err))
			continue
		}
		m.attached = true
		c.markers = append(c.markers, m)
		c.byID[m.ID] = m
	}
	return errors.Join(errs...)
}

// Clear removes every live marker from the surface.
func (c *ClusterCoordinator) Clear() {
	for _, m := range c.markers {
		c.surface.RemoveMarker(m)
		m.attached = false
		m.open = false
	}
	c.markers = nil
	c.byID = make(map[string]*Marker)
	c.revealing = nil
}

// Markers returns the live markers in group order.
func (c *ClusterCoordinator) Markers() []*Marker {
	return append([]*Marker(nil), c.markers...)
}

// Click toggles a marker's detail view. Opening materializes its content.
func (c *ClusterCoordinator) Click(id string) (Content, bool, error) {
	m, ok := c.byID[id]
	if !ok {
		return Content{}, false, ErrUnknownMarker
	}
	if m.open {
		m.open = false
		content, _ := m.presenter.Shown()
		return content, false, nil
	}
	content, err := m.presenter.materialize()
	if err != nil {
		return Content{}, false, err
	}
	m.open = true
	return content, true, nil
}

// Advance pages the marker's group. The marker's open state is left alone.
func (c *ClusterCoordinator) Advance(id string, direction int) (Content, error) {
	m, ok := c.byID[id]
	if !ok {
		return Content{}, ErrUnknownMarker
	}
	return m.presenter.Advance(direction)
}

// Locate returns the live marker nearest to target whose coordinates are
// both within tolerance of it.
func (c *ClusterCoordinator) Locate(target orb.Point, tolerance float64) (*Marker, bool) {
	if tolerance <= 0 {
		tolerance = defaultMatchTolerance
	}
	var best *Marker
	bestDistance := math.Inf(1)
	for _, m := range c.markers {
		p := m.Position()
		if math.Abs(p.X()-target.X()) > tolerance || math.Abs(p.Y()-target.Y()) > tolerance {
			continue
		}
		if d := planar.Distance(p, target); d < bestDistance {
			best = m
			bestDistance = d
		}
	}
	return best, best != nil
}

// RevealAndLocate finds the marker for target and makes the surface show it
// individually, waiting for any cluster expansion up to the reveal timeout.
// Calling it again for a marker that is already visible does not reveal again.
func (c *ClusterCoordinator) RevealAndLocate(ctx context.Context, target orb.Point, tolerance float64) (*Marker, error) {
	m, ok := c.Locate(target, tolerance)
	if !ok {
		return nil, ErrMarkerNotFound
	}
	if c.surface.IsVisible(m) {
		c.revealing = nil
		return m, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.revealTimeout)
	defer cancel()

	if c.revealing != m {
		if err := c.surface.Reveal(ctx, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevealTimeout, err)
		}
		c.revealing = m
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = revealInitialInterval
	policy.MaxInterval = revealMaxPollInterval
	policy.Multiplier = revealPollMultiplier
	policy.RandomizationFactor = revealPollRandomFactor
	policy.MaxElapsedTime = c.revealTimeout

	err := backoff.Retry(func() error {
		if c.surface.IsVisible(m) {
			return nil
		}
		return errNotYetVisible
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRevealTimeout, err)
	}
	c.revealing = nil
	return m, nil
}
