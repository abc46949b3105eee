package mapview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMap(surface *fakeSurface, events *[]Event) *Map {
	return New(surface, Options{
		NewID:         sequentialIDs("id"),
		RevealTimeout: 50 * time.Millisecond,
		Now:           func() time.Time { return time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC) },
		OnEvent: func(e Event) {
			if events != nil {
				*events = append(*events, e)
			}
		},
	})
}

func loadRecords(t *testing.T, m *Map, records []Record) Snapshot {
	t.Helper()
	snap, err := m.Load(context.Background(), m.BeginFetch(), records)
	require.NoError(t, err)
	return snap
}

func scenarioRecords() []Record {
	return []Record{
		rec("1", "pothole", "high", 18.52, 73.85, "2025-03-02 09:00:00"),
		rec("2", "pothole", "low", 18.52, 73.85, "2025-03-01 09:00:00"),
		rec("3", "garbage", "medium", 18.53, 73.86, "2025-02-28 09:00:00"),
	}
}

func TestMap_BackgroundRefreshDoesNotNavigateAgain(t *testing.T) {
	surface := newFakeSurface()
	var events []Event
	m := newTestMap(surface, &events)

	snap := loadRecords(t, m, scenarioRecords())
	assert.Equal(t, Navigated, snap.Navigation.Phase)
	assert.Len(t, snap.Markers, 2)
	assert.Equal(t, 3, snap.Located)

	snap = loadRecords(t, m, scenarioRecords())
	assert.Equal(t, Navigated, snap.Navigation.Phase)
	assert.Len(t, surface.flights, 1)

	navigated := 0
	for _, e := range events {
		if e.Kind == EventNavigated {
			navigated++
		}
	}
	assert.Equal(t, 1, navigated)
}

func TestMap_FilterChangeRearmsNavigation(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	loadRecords(t, m, scenarioRecords())

	snap := m.SetFilter(context.Background(), Filter{Type: "Garbage"})

	assert.Len(t, snap.Markers, 1)
	assert.Equal(t, Navigated, snap.Navigation.Phase)
	assert.Equal(t, "3", snap.Navigation.RecordID)
	assert.Len(t, surface.flights, 2)

	loadRecords(t, m, scenarioRecords())
	assert.Len(t, surface.flights, 2)
}

func TestMap_SameFilterIsNotAChange(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	loadRecords(t, m, scenarioRecords())

	m.SetFilter(context.Background(), Filter{Type: "all", Status: "All"})

	assert.Len(t, surface.flights, 1)
}

func TestMap_FilterWithNoMatchesStaysIdle(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	loadRecords(t, m, scenarioRecords())

	snap := m.SetFilter(context.Background(), Filter{Type: "streetlight"})

	assert.Equal(t, 0, snap.Filtered)
	assert.Empty(t, snap.Markers)
	assert.Empty(t, surface.live)
	assert.Equal(t, Idle, snap.Navigation.Phase)
}

func TestMap_StaleFetchIsDiscarded(t *testing.T) {
	surface := newFakeSurface()
	var events []Event
	m := newTestMap(surface, &events)

	older := m.BeginFetch()
	newer := m.BeginFetch()

	_, err := m.Load(context.Background(), newer, scenarioRecords()[:1])
	require.NoError(t, err)

	snap, err := m.Load(context.Background(), older, scenarioRecords())
	assert.ErrorIs(t, err, ErrStaleFetch)
	assert.Equal(t, 1, snap.Total)

	m.FailFetch(older, errors.New("late failure"))
	assert.Nil(t, m.Snapshot().Notice)
	assert.Equal(t, EventFetchDiscarded, events[len(events)-1].Kind)
}

func TestMap_FetchFailureKeepsLastState(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	loadRecords(t, m, scenarioRecords())

	m.FailFetch(m.BeginFetch(), errors.New("connection refused"))

	snap := m.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, NoticeDataFetchFailure, snap.Notice.Kind)
	assert.Equal(t, "connection refused", snap.Notice.Message)
	assert.Len(t, snap.Markers, 2)

	loadRecords(t, m, scenarioRecords())
	assert.Nil(t, m.Snapshot().Notice)
}

func TestMap_FilterBeforeFirstLoad(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)

	m.SetFilter(context.Background(), Filter{Urgency: "high"})
	snap := loadRecords(t, m, scenarioRecords())

	assert.Equal(t, 1, snap.Filtered)
	assert.Equal(t, "1", snap.Navigation.RecordID)
}

func TestMap_ClickAndAdvanceThroughFacade(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	snap := loadRecords(t, m, scenarioRecords())
	id := snap.Markers[0].ID

	content, open, err := m.Click(id)
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "1 / 2", content.Position)

	content, err = m.Advance(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "2 / 2", content.Position)

	view := m.Snapshot().Markers[0]
	assert.True(t, view.Open)
	require.NotNil(t, view.Content)
	assert.Equal(t, "2", view.Content.RecordID)

	loadRecords(t, m, scenarioRecords())
	_, err = m.Advance(id, 1)
	assert.ErrorIs(t, err, ErrUnknownMarker)
}

func TestMap_HeatFollowsFilteredSet(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	loadRecords(t, m, scenarioRecords())

	shown, err := m.ToggleHeat()
	require.NoError(t, err)
	assert.True(t, shown)
	assert.Len(t, surface.heatAdded[0].Points, 3)

	m.SetFilter(context.Background(), Filter{Urgency: "high"})
	require.Len(t, surface.heatAdded, 2)
	assert.Len(t, surface.heatAdded[1].Points, 1)

	shown, err = m.ToggleHeat()
	require.NoError(t, err)
	assert.False(t, shown)
	assert.False(t, m.Snapshot().HeatShown)
}

func TestMap_ResizeInvalidatesSurface(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)

	m.Resize()

	assert.Equal(t, 1, surface.invalidated)
}

func TestMap_ControlsShareTheMapLock(t *testing.T) {
	surface := newFakeSurface()
	m := newTestMap(surface, nil)
	snap := loadRecords(t, m, scenarioRecords())
	id := snap.Markers[0].ID

	content, _, err := m.Click(id)
	require.NoError(t, err)
	require.NotNil(t, content.Controls)

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = content.Controls.Next()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = m.Advance(id, 1)
		}
	}()
	wg.Wait()

	view := m.Snapshot().Markers[0]
	require.NotNil(t, view.Content)
	assert.Equal(t, "1 / 2", view.Content.Position)

	prev, err := content.Controls.Prev()
	require.NoError(t, err)
	assert.Equal(t, "2 / 2", prev.Position)
}
