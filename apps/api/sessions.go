package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"complaintmap/libs/mapview"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"
)

// mapSession is one client's map view: the engine plus the headless surface
// it draws on.
type mapSession struct {
	ID        string
	CreatedAt time.Time
	view      *mapview.Map
	surface   *viewSurface
}

// sessionRegistry holds live sessions and expires them after ttl without use.
type sessionRegistry struct {
	items *cache.Cache
}

func newSessionRegistry(ttl time.Duration, logger *slog.Logger, onChange func(count int)) *sessionRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	r := &sessionRegistry{items: cache.New(ttl, ttl/2)}
	r.items.OnEvicted(func(id string, _ interface{}) {
		logger.Info("map session closed", "session", id)
		if onChange != nil {
			onChange(r.items.ItemCount())
		}
	})
	return r
}

func (r *sessionRegistry) add(s *mapSession) {
	r.items.SetDefault(s.ID, s)
}

// get returns the session and extends its lifetime.
func (r *sessionRegistry) get(id string) (*mapSession, bool) {
	value, ok := r.items.Get(id)
	if !ok {
		return nil, false
	}
	s := value.(*mapSession)
	r.items.SetDefault(id, s)
	return s, true
}

func (r *sessionRegistry) remove(id string) bool {
	if _, ok := r.items.Get(id); !ok {
		return false
	}
	r.items.Delete(id)
	return true
}

func (r *sessionRegistry) all() []*mapSession {
	items := r.items.Items()
	out := make([]*mapSession, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*mapSession))
	}
	return out
}

func (r *sessionRegistry) count() int {
	return r.items.ItemCount()
}

func (a *App) newMapSession() *mapSession {
	id := uuid.NewString()
	surface := newViewSurface(surfaceOptions{
		Center:          orb.Point{a.cfg.MapCenterLng, a.cfg.MapCenterLat},
		Zoom:            a.cfg.MapDefaultZoom,
		MaxZoom:         a.cfg.MapMaxZoom,
		ClusterRadiusPx: a.cfg.ClusterRadiusPx,
	})
	view := mapview.New(surface, mapview.Options{
		NavigateZoom:  a.cfg.NavigateZoom,
		MaxAttempts:   a.cfg.NavigateMaxAttempts,
		RevealTimeout: a.cfg.RevealTimeout,
		Logger:        a.log.With("session", id),
		OnEvent:       a.metrics.observeEvent,
	})
	s := &mapSession{ID: id, CreatedAt: time.Now().UTC(), view: view, surface: surface}
	a.sessions.add(s)
	a.metrics.sessions.Set(float64(a.sessions.count()))
	a.log.Info("map session opened", "session", id)
	return s
}

// fetchComplaints reads the source once, recording metrics and source health.
func (a *App) fetchComplaints(ctx context.Context) ([]mapview.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, sourceFetchTimeout)
	defer cancel()

	started := time.Now()
	records, err := a.source.FetchComplaints(ctx)
	a.metrics.observeFetch(a.source.Name(), started, err)
	a.health.record(err)
	if err != nil {
		a.log.Warn("complaint fetch failed", "source", a.source.Name(), "err", err)
		return nil, err
	}
	return records, nil
}

// refreshSession runs one fetch cycle for s. A result overtaken by a newer
// fetch is dropped silently.
func (a *App) refreshSession(ctx context.Context, s *mapSession) (mapview.Snapshot, error) {
	gen := s.view.BeginFetch()
	records, err := a.fetchComplaints(ctx)
	if err != nil {
		s.view.FailFetch(gen, err)
		return s.view.Snapshot(), err
	}
	snap, err := s.view.Load(ctx, gen, records)
	if errors.Is(err, mapview.ErrStaleFetch) {
		return s.view.Snapshot(), nil
	}
	return snap, err
}
