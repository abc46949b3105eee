package main

import (
	"context"
	"errors"
	"time"

	"complaintmap/libs/mapview"
)

// startSourcePoller refreshes every live session from one shared fetch per
// tick. Refreshes keep each session's filter and never re-arm navigation.
func (a *App) startSourcePoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		a.log.Info("source polling disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.pollSessions(ctx)
			}
		}
	}()
}

func (a *App) pollSessions(ctx context.Context) {
	sessions := a.sessions.all()
	if len(sessions) == 0 {
		return
	}

	gens := make([]uint64, len(sessions))
	for i, s := range sessions {
		gens[i] = s.view.BeginFetch()
	}

	records, err := a.fetchComplaints(ctx)
	for i, s := range sessions {
		if err != nil {
			s.view.FailFetch(gens[i], err)
			continue
		}
		if _, loadErr := s.view.Load(ctx, gens[i], records); loadErr != nil && !errors.Is(loadErr, mapview.ErrStaleFetch) {
			a.log.Warn("background refresh failed", "session", s.ID, "err", loadErr)
		}
	}
	a.log.Debug("background refresh done", "sessions", len(sessions), "ok", err == nil)
}
