package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, records ...Record) (*ClusterCoordinator, *fakeSurface) {
	t.Helper()
	surface := newFakeSurface()
	c := NewClusterCoordinator(surface, sequentialIDs("m"), 0)
	require.NoError(t, c.Rebuild(GroupByCoordinate(records)))
	return c, surface
}

func TestPresenterContent(t *testing.T) {
	a := rec("1", "Pothole", "high", 18.52, 73.85, "2025-03-02")
	a.ImageURL = "https://example.org/uploads/a.jpg"
	b := rec("2", "Pothole", "low", 18.52, 73.85, "2025-03-01")
	c, _ := newTestCoordinator(t, a, b)

	content := c.Markers()[0].Presenter().Content()

	assert.Equal(t, "Pothole", content.Type)
	assert.Equal(t, "Pending", content.Status)
	assert.Equal(t, "high", content.Urgency)
	assert.Equal(t, "description 1", content.Description)
	assert.Equal(t, "reporter 1", content.Reporter)
	assert.Equal(t, "https://example.org/uploads/a.jpg", content.ImageURL)
	assert.Equal(t, "1 / 2", content.Position)
	assert.True(t, content.Paged)
	require.NotNil(t, content.Controls)
}

func TestPresenterContent_SingleRecordHasNoControls(t *testing.T) {
	c, _ := newTestCoordinator(t, rec("1", "Pothole", "high", 18.52, 73.85, "2025-03-02"))

	content := c.Markers()[0].Presenter().Content()

	assert.Equal(t, "1 / 1", content.Position)
	assert.False(t, content.Paged)
	assert.Nil(t, content.Controls)
}

func TestPresenterAdvance_PushesContentWithoutTogglingMarker(t *testing.T) {
	c, surface := newTestCoordinator(t,
		rec("1", "a", "high", 1, 1, "2025-01-03"),
		rec("2", "b", "low", 1, 1, "2025-01-02"),
		rec("3", "c", "low", 1, 1, "2025-01-01"),
	)
	marker := c.Markers()[0]

	opened, open, err := c.Click(marker.ID)
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, "1 / 3", opened.Position)

	next, err := opened.Controls.Next()
	require.NoError(t, err)
	assert.Equal(t, "2 / 3", next.Position)
	assert.Equal(t, "2", next.RecordID)
	assert.True(t, marker.IsOpen())

	prev, err := next.Controls.Prev()
	require.NoError(t, err)
	assert.Equal(t, "1 / 3", prev.Position)

	wrapped, err := c.Advance(marker.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, "3 / 3", wrapped.Position)
	assert.True(t, marker.IsOpen())

	shown := surface.shown[marker.ID]
	require.Len(t, shown, 4)
	assert.Equal(t, "3 / 3", shown[len(shown)-1].Position)
}

func TestPresenterAdvance_FullCycleRestoresCursor(t *testing.T) {
	c, _ := newTestCoordinator(t,
		rec("1", "a", "high", 1, 1, "2025-01-03"),
		rec("2", "b", "low", 1, 1, "2025-01-02"),
		rec("3", "c", "low", 1, 1, "2025-01-01"),
		rec("4", "d", "low", 1, 1, "2025-01-01"),
	)
	p := c.Markers()[0].Presenter()

	for i := 0; i < 4; i++ {
		_, err := p.Advance(1)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, p.Group().Cursor())
}

func TestPresenterRefresh_NoopBeforeMaterialized(t *testing.T) {
	c, surface := newTestCoordinator(t, rec("1", "a", "high", 1, 1, "2025-01-03"))
	p := c.Markers()[0].Presenter()

	assert.False(t, p.Refresh())
	assert.Empty(t, surface.shown)

	_, _, err := c.Click(c.Markers()[0].ID)
	require.NoError(t, err)
	assert.True(t, p.Refresh())
}

func TestPresenter_DetachedMarkerIsNoop(t *testing.T) {
	c, surface := newTestCoordinator(t,
		rec("1", "a", "high", 1, 1, "2025-01-03"),
		rec("2", "b", "low", 1, 1, "2025-01-02"),
	)
	stale := c.Markers()[0]
	c.Clear()

	_, err := stale.Presenter().Advance(1)
	assert.ErrorIs(t, err, ErrMarkerDetached)
	assert.False(t, stale.Presenter().Refresh())
	assert.Equal(t, 0, stale.Presenter().Group().Cursor())
	assert.Empty(t, surface.shown)
}

func TestClick_TogglesOpenState(t *testing.T) {
	c, _ := newTestCoordinator(t, rec("1", "a", "high", 1, 1, "2025-01-03"))
	id := c.Markers()[0].ID

	_, open, err := c.Click(id)
	require.NoError(t, err)
	assert.True(t, open)

	content, open, err := c.Click(id)
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, "1", content.RecordID)

	_, _, err = c.Click("missing")
	assert.ErrorIs(t, err, ErrUnknownMarker)
}
