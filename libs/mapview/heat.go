package mapview

// HeatPoint is one weighted sample of the heat overlay.
type HeatPoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

// HeatLayer is a built overlay. A new one is created on every show.
type HeatLayer struct {
	ID     string      `json:"id"`
	Points []HeatPoint `json:"points"`
}

// UrgencyWeight maps an urgency value to its heat weight.
func UrgencyWeight(urgency string) float64 {
	switch Normalize(urgency) {
	case "high":
		return 1.2
	case "medium":
		return 0.9
	default:
		return 0.6
	}
}

// HeatPoints derives weighted samples from located records.
func HeatPoints(records []Record) []HeatPoint {
	points := make([]HeatPoint, 0, len(records))
	for _, r := range records {
		if !r.Located() {
			continue
		}
		points = append(points, HeatPoint{Lat: r.Latitude, Lng: r.Longitude, Weight: UrgencyWeight(r.Urgency)})
	}
	return points
}

// HeatOverlay toggles the urgency heat layer on a surface.
type HeatOverlay struct {
	surface Surface
	newID   func() string
	layer   *HeatLayer
}

// NewHeatOverlay returns a hidden overlay controller.
func NewHeatOverlay(surface Surface, newID func() string) *HeatOverlay {
	return &HeatOverlay{surface: surface, newID: newID}
}

// Shown reports whether a layer is on the surface.
func (h *HeatOverlay) Shown() bool { return h.layer != nil }

// Layer returns the live layer, or nil.
func (h *HeatOverlay) Layer() *HeatLayer { return h.layer }

// Toggle removes the live layer, or builds a new one from records. With no
// located records nothing is built and the overlay stays hidden.
func (h *HeatOverlay) Toggle(records []Record) (bool, error) {
	if h.layer != nil {
		h.hide()
		return false, nil
	}
	return h.show(records)
}

// Rebuild replaces a shown layer with one derived from records.
func (h *HeatOverlay) Rebuild(records []Record) (bool, error) {
	if h.layer == nil {
		return false, nil
	}
	h.hide()
	return h.show(records)
}

func (h *HeatOverlay) show(records []Record) (bool, error) {
	points := HeatPoints(records)
	if len(points) == 0 {
		return false, nil
	}
	layer := &HeatLayer{ID: h.newID(), Points: points}
	if err := h.surface.AddHeatLayer(layer); err != nil {
		return false, err
	}
	h.layer = layer
	return true, nil
}

func (h *HeatOverlay) hide() {
	h.surface.RemoveHeatLayer(h.layer)
	h.layer = nil
}
