package mapview

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Content is the detail payload for the record under a group's cursor.
type Content struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	Urgency     string `json:"urgency"`
	Description string `json:"description"`
	Reporter    string `json:"reporter"`
	ImageURL    string `json:"image_url,omitempty"`
	Position    string `json:"position"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	RecordID    string `json:"record_id"`
	Paged       bool   `json:"paged"`

	// Controls is nil for single-record groups.
	Controls *Controls `json:"-"`
}

// Controls are the next/prev handles a renderer binds inside the detail view.
// Invoking them pages the group without touching the marker's open state.
type Controls struct {
	Next func() (Content, error)
	Prev func() (Content, error)
}

// Marker is the live, per-cycle representation of one coordinate group.
type Marker struct {
	ID        string
	Key       Key
	presenter *Presenter
	attached  bool
	open      bool
}

// Position returns the marker position in orb's (lng, lat) order.
func (m *Marker) Position() orb.Point { return m.Key.Point() }

// Count returns the number of complaints behind the marker.
func (m *Marker) Count() int { return m.presenter.group.Len() }

// IsOpen reports whether the marker's detail view is open.
func (m *Marker) IsOpen() bool { return m.open }

// Attached reports whether the marker is currently on the surface.
func (m *Marker) Attached() bool { return m.attached }

// Presenter returns the marker's group presenter.
func (m *Marker) Presenter() *Presenter { return m.presenter }

// Presenter pages through one group's records and keeps the marker's detail
// view in sync with the cursor.
type Presenter struct {
	group   *Group
	marker  *Marker
	surface Surface
	shown   *Content

	// controls, when set, builds the next/prev handles for the marker
	// instead of paging the group directly.
	controls func(markerID string) *Controls
}

func newPresenter(group *Group, marker *Marker, surface Surface) *Presenter {
	p := &Presenter{group: group, marker: marker, surface: surface}
	marker.presenter = p
	return p
}

// Group returns the group being presented.
func (p *Presenter) Group() *Group { return p.group }

// Content builds the payload for the current cursor.
func (p *Presenter) Content() Content {
	r := p.group.Current()
	n := p.group.Len()
	c := Content{
		Type:        r.Type,
		Status:      r.Status,
		Urgency:     r.Urgency,
		Description: r.Description,
		Reporter:    r.ReporterName,
		ImageURL:    r.ImageURL,
		Position:    fmt.Sprintf("%d / %d", p.group.Cursor()+1, n),
		Index:       p.group.Cursor(),
		Total:       n,
		RecordID:    r.ID,
		Paged:       n > 1,
	}
	if c.Paged {
		if p.controls != nil {
			c.Controls = p.controls(p.marker.ID)
		} else {
			c.Controls = &Controls{
				Next: func() (Content, error) { return p.Advance(1) },
				Prev: func() (Content, error) { return p.Advance(-1) },
			}
		}
	}
	return c
}

// Shown returns the content last pushed to the surface, if any.
func (p *Presenter) Shown() (Content, bool) {
	if p.shown == nil {
		return Content{}, false
	}
	return *p.shown, true
}

// Refresh regenerates the detail view. It does nothing until the marker is
// attached and its content has been materialized by a first interaction.
func (p *Presenter) Refresh() bool {
	if !p.marker.attached || p.shown == nil {
		return false
	}
	p.show()
	return true
}

// materialize builds and shows content on first interaction.
func (p *Presenter) materialize() (Content, error) {
	if !p.marker.attached {
		return Content{}, ErrMarkerDetached
	}
	return p.show(), nil
}

// Advance pages the cursor and pushes the new content synchronously.
func (p *Presenter) Advance(direction int) (Content, error) {
	if !p.marker.attached {
		return Content{}, ErrMarkerDetached
	}
	if _, err := p.group.Advance(direction); err != nil {
		return Content{}, err
	}
	return p.show(), nil
}

func (p *Presenter) show() Content {
	c := p.Content()
	p.shown = &c
	p.surface.ShowContent(p.marker, c)
	return c
}
