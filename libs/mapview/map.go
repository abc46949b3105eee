package mapview

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened inside a Map.
type EventKind string

const (
	EventRebuilt           EventKind = "rebuilt"
	EventNavigated         EventKind = "navigated"
	EventNavigationMissed  EventKind = "navigation_missed"
	EventFetchFailed       EventKind = "fetch_failed"
	EventFetchDiscarded    EventKind = "fetch_discarded"
	EventHeatToggled       EventKind = "heat_toggled"
	EventRebuildIncomplete EventKind = "rebuild_incomplete"
)

// Event is delivered to Options.OnEvent while the Map lock is held; handlers
// must not call back into the Map.
type Event struct {
	Kind    EventKind
	Markers int
	Err     error
}

// NoticeDataFetchFailure is the only notice kind the engine raises.
const NoticeDataFetchFailure = "data_fetch_failure"

// Notice is a non-fatal message for the operator.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Options configure a Map. Zero values fall back to defaults.
type Options struct {
	NavigateZoom  int
	Tolerance     float64
	MaxAttempts   int
	RevealTimeout time.Duration
	Logger        *slog.Logger
	NewID         func() string
	OnEvent       func(Event)
	Now           func() time.Time
}

// Map runs the filter, group, rebuild and navigate pipeline for one map view.
// All methods are safe for concurrent use; a single mutex guards the marker
// set, navigation state, heat layer and filter.
type Map struct {
	mu      sync.Mutex
	surface Surface
	log     *slog.Logger
	onEvent func(Event)
	now     func() time.Time

	issued   uint64
	records  []Record
	loaded   bool
	filter   Filter
	filtered []Record
	groups   []*Group
	notice   *Notice

	markers   *ClusterCoordinator
	navigator *Navigator
	heat      *HeatOverlay
}

// New returns a Map bound to surface with nothing loaded.
func New(surface Surface, opts Options) *Map {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Map{
		surface:  surface,
		log:      logger,
		onEvent:  opts.OnEvent,
		now:      now,
		filtered: []Record{},
		markers:  NewClusterCoordinator(surface, newID, opts.RevealTimeout),
		navigator: NewNavigator(NavigatorOptions{
			Zoom:        opts.NavigateZoom,
			Tolerance:   opts.Tolerance,
			MaxAttempts: opts.MaxAttempts,
		}, logger),
		heat: NewHeatOverlay(surface, newID),
	}
	m.markers.controls = m.controlsFor
	return m
}

// controlsFor builds next/prev handles that page through Advance, so they
// take the lock like every other Map call. They must not be invoked from
// inside a Surface method.
func (m *Map) controlsFor(markerID string) *Controls {
	return &Controls{
		Next: func() (Content, error) { return m.Advance(markerID, 1) },
		Prev: func() (Content, error) { return m.Advance(markerID, -1) },
	}
}

// BeginFetch returns the generation tag for a fetch about to start. Only the
// most recently issued generation may be loaded.
func (m *Map) BeginFetch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	return m.issued
}

// Load applies the result of fetch gen as a background refresh: the current
// filter is kept and navigation is not re-armed.
func (m *Map) Load(ctx context.Context, gen uint64, records []Record) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.issued {
		m.emit(Event{Kind: EventFetchDiscarded})
		return m.snapshotLocked(), ErrStaleFetch
	}
	m.records = append([]Record(nil), records...)
	m.loaded = true
	m.notice = nil
	m.rebuildLocked(ctx)
	return m.snapshotLocked(), nil
}

// FailFetch records a DataFetchFailure for fetch gen. The map keeps showing
// its last valid state.
func (m *Map) FailFetch(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.issued {
		m.emit(Event{Kind: EventFetchDiscarded, Err: err})
		return
	}
	m.notice = &Notice{Kind: NoticeDataFetchFailure, Message: err.Error(), At: m.now().UTC()}
	m.log.Warn("complaint fetch failed", "err", err)
	m.emit(Event{Kind: EventFetchFailed, Err: err})
}

// SetFilter applies an explicit user filter change. A filter that normalizes
// to the current one is not a change and leaves navigation alone.
func (m *Map) SetFilter(ctx context.Context, f Filter) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Normalized() == m.filter.Normalized() {
		return m.snapshotLocked()
	}
	m.filter = f
	m.navigator.Reset()
	if m.loaded {
		m.rebuildLocked(ctx)
	}
	return m.snapshotLocked()
}

// Click toggles a marker's detail view and reports whether it is now open.
func (m *Map) Click(markerID string) (Content, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers.Click(markerID)
}

// Advance pages a marker's detail view by direction (+1 or -1).
func (m *Map) Advance(markerID string, direction int) (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers.Advance(markerID, direction)
}

// ToggleHeat shows or tears down the heat overlay for the filtered set.
func (m *Map) ToggleHeat() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shown, err := m.heat.Toggle(m.filtered)
	if err != nil {
		m.log.Warn("heat overlay toggle failed", "err", err)
	}
	m.emit(Event{Kind: EventHeatToggled, Err: err})
	return shown, err
}

// Resize forwards a container size change to the surface.
func (m *Map) Resize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surface.Invalidate()
}

// Filtered returns a copy of the current filtered records.
func (m *Map) Filtered() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.filtered...)
}

// Navigation returns the navigator state.
func (m *Map) Navigation() NavigationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.navigator.State()
}

// Snapshot returns the current view model.
func (m *Map) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Map) rebuildLocked(ctx context.Context) {
	m.filtered = Apply(m.records, m.filter)
	m.groups = GroupByCoordinate(m.filtered)
	if err := m.markers.Rebuild(m.groups); err != nil {
		m.log.Warn("some markers were not attached", "err", err)
		m.emit(Event{Kind: EventRebuildIncomplete, Err: err})
	}
	if _, err := m.heat.Rebuild(m.filtered); err != nil {
		m.log.Warn("heat overlay rebuild failed", "err", err)
	}
	m.emit(Event{Kind: EventRebuilt, Markers: len(m.markers.markers)})

	before := m.navigator.State().Phase
	state, err := m.navigator.AfterRebuild(ctx, m.filtered, m.markers, m.surface)
	switch {
	case err != nil:
		m.emit(Event{Kind: EventNavigationMissed, Err: err})
	case before != Navigated && state.Phase == Navigated:
		m.emit(Event{Kind: EventNavigated})
	}
}

func (m *Map) emit(e Event) {
	if m.onEvent != nil {
		m.onEvent(e)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
