package mapview

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Phase is the auto-navigation state.
type Phase int

const (
	Idle Phase = iota
	Searching
	Navigated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Navigated:
		return "navigated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets Phase appear as a word in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{Idle, Searching, Navigated} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("mapview: unknown phase %q", text)
}

// NavigationState is a copy of the navigator's state.
type NavigationState struct {
	Phase    Phase  `json:"phase"`
	Attempts int    `json:"attempts"`
	Target   *Key   `json:"target,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// Exhausted reports whether the armed cycle used up its attempts.
func (s NavigationState) Exhausted(maxAttempts int) bool {
	return s.Phase == Searching && s.Attempts >= maxAttempts
}

const (
	defaultNavigateZoom = 17
	defaultMaxAttempts  = 3
)

// NavigatorOptions tune the one-shot fly-to-newest behaviour.
type NavigatorOptions struct {
	Zoom        int
	Tolerance   float64
	MaxAttempts int
}

// Navigator flies the view to the newest complaint once per armed cycle.
type Navigator struct {
	opts  NavigatorOptions
	state NavigationState
	log   *slog.Logger
}

// NewNavigator returns an armed navigator in the Idle phase.
func NewNavigator(opts NavigatorOptions, logger *slog.Logger) *Navigator {
	if opts.Zoom <= 0 {
		opts.Zoom = defaultNavigateZoom
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultMatchTolerance
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Navigator{opts: opts, log: logger}
}

// State returns a copy of the current state.
func (n *Navigator) State() NavigationState {
	s := n.state
	if s.Target != nil {
		target := *s.Target
		s.Target = &target
	}
	return s
}

// Options returns the effective options.
func (n *Navigator) Options() NavigatorOptions { return n.opts }

// Reset re-arms navigation. Only explicit filter changes call it.
func (n *Navigator) Reset() {
	n.state = NavigationState{Phase: Idle}
}

// AfterRebuild runs one step of the state machine against the freshly rebuilt
// marker set. The returned error is informational; navigation failures never
// stop the rebuild that triggered them.
func (n *Navigator) AfterRebuild(ctx context.Context, records []Record, markers *ClusterCoordinator, surface Surface) (NavigationState, error) {
	if n.state.Phase == Navigated {
		return n.State(), nil
	}
	newest, ok := Newest(records)
	if !ok {
		return n.State(), nil
	}
	if n.state.Phase == Idle {
		n.state = NavigationState{Phase: Searching}
		n.log.Debug("auto-navigation armed", "record_id", newest.ID)
	}
	if n.state.Attempts >= n.opts.MaxAttempts {
		return n.State(), nil
	}

	n.state.Attempts++
	target := KeyOf(newest)
	n.state.Target = &target
	n.state.RecordID = newest.ID

	marker, err := markers.RevealAndLocate(ctx, target.Point(), n.opts.Tolerance)
	if err != nil {
		n.log.Info("auto-navigation target not revealed",
			"record_id", newest.ID,
			"attempt", n.state.Attempts,
			"max_attempts", n.opts.MaxAttempts,
			"err", err,
		)
		return n.State(), err
	}
	// Never zoom out past the level the reveal settled at.
	zoom := n.opts.Zoom
	if revealed := surface.Zoom(); revealed > zoom {
		zoom = revealed
	}
	if err := surface.FlyTo(ctx, marker.Position(), zoom, true); err != nil {
		n.log.Info("auto-navigation fly-to failed", "record_id", newest.ID, "err", err)
		return n.State(), fmt.Errorf("fly to %s: %w", target, err)
	}
	if !surface.IsVisible(marker) {
		n.log.Info("auto-navigation target clustered after fly-to", "record_id", newest.ID, "zoom", zoom)
		return n.State(), fmt.Errorf("%w: %s clustered at zoom %d", ErrRevealTimeout, target, zoom)
	}
	n.state.Phase = Navigated
	n.log.Info("auto-navigated to newest complaint", "record_id", newest.ID, "target", target.String())
	return n.State(), nil
}

// Newest returns the most recent located record by CreatedAt. Records whose
// timestamp could not be parsed rank after parsed ones and compare by their
// raw value; remaining ties keep input order.
func Newest(records []Record) (Record, bool) {
	located := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Located() {
			located = append(located, r)
		}
	}
	if len(located) == 0 {
		return Record{}, false
	}
	SortNewestFirst(located)
	return located[0], true
}

// SortNewestFirst orders records by CreatedAt descending, in place.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		aParsed, bParsed := !a.CreatedAt.IsZero(), !b.CreatedAt.IsZero()
		switch {
		case aParsed && bParsed:
			return a.CreatedAt.After(b.CreatedAt)
		case aParsed != bParsed:
			return aParsed
		default:
			return a.CreatedAtRaw > b.CreatedAtRaw
		}
	})
}
