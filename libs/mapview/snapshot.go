package mapview

// MarkerView describes one live marker for renderers and APIs.
type MarkerView struct {
	ID      string   `json:"id"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Count   int      `json:"count"`
	Open    bool     `json:"open"`
	Visible bool     `json:"visible"`
	Content *Content `json:"content,omitempty"`
}

// Snapshot is the view model of a Map at one point in time.
type Snapshot struct {
	Filter     Filter          `json:"filter"`
	Loaded     bool            `json:"loaded"`
	Total      int             `json:"total"`
	Filtered   int             `json:"filtered"`
	Located    int             `json:"located"`
	Markers    []MarkerView    `json:"markers"`
	Navigation NavigationState `json:"navigation"`
	HeatShown  bool            `json:"heat_shown"`
	Notice     *Notice         `json:"notice,omitempty"`
	Generation uint64          `json:"generation"`
}

func (m *Map) snapshotLocked() Snapshot {
	located := 0
	for _, g := range m.groups {
		located += g.Len()
	}
	markers := make([]MarkerView, 0, len(m.markers.markers))
	for _, mk := range m.markers.markers {
		view := MarkerView{
			ID:      mk.ID,
			Lat:     mk.Key.Lat,
			Lng:     mk.Key.Lng,
			Count:   mk.Count(),
			Open:    mk.open,
			Visible: m.surface.IsVisible(mk),
		}
		if content, ok := mk.presenter.Shown(); ok {
			view.Content = &content
		}
		markers = append(markers, view)
	}
	var notice *Notice
	if m.notice != nil {
		n := *m.notice
		notice = &n
	}
	return Snapshot{
		Filter:     m.filter,
		Loaded:     m.loaded,
		Total:      len(m.records),
		Filtered:   len(m.filtered),
		Located:    located,
		Markers:    markers,
		Navigation: m.navigator.State(),
		HeatShown:  m.heat.Shown(),
		Notice:     notice,
		Generation: m.issued,
	}
}
