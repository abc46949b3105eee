package mapview

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByCoordinate_SameCoordinateScenario(t *testing.T) {
	records := []Record{
		rec("1", "pothole", "high", 18.52, 73.85, "2025-03-02 09:00:00"),
		rec("2", "pothole", "low", 18.52, 73.85, "2025-03-01 09:00:00"),
	}

	groups := GroupByCoordinate(records)

	require.Len(t, groups, 1)
	assert.Equal(t, Key{Lat: 18.52, Lng: 73.85}, groups[0].Key)
	assert.Equal(t, []string{"1", "2"}, recordIDs(groups[0].Records))

	newest, ok := Newest(records)
	require.True(t, ok)
	assert.Equal(t, "1", newest.ID)
}

func TestGroupByCoordinate_SkipsUnlocatedRecords(t *testing.T) {
	records := []Record{
		rec("a", "x", "low", 0, 73.85, "2025-01-01"),
		rec("b", "x", "low", 18.52, 0, "2025-01-01"),
		rec("c", "x", "low", math.NaN(), 73.85, "2025-01-01"),
		rec("d", "x", "low", 18.52, 73.85, "2025-01-01"),
	}

	groups := GroupByCoordinate(records)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"d"}, recordIDs(groups[0].Records))
}

func TestGroupByCoordinate_ExactMatchOnly(t *testing.T) {
	records := []Record{
		rec("1", "x", "low", 18.52, 73.85, "2025-01-01"),
		rec("2", "x", "low", 18.520001, 73.85, "2025-01-01"),
		rec("3", "x", "low", 18.52, 73.85, "2025-01-01"),
		rec("4", "x", "low", 10, 20, "2025-01-01"),
	}

	groups := GroupByCoordinate(records)

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"1", "3"}, recordIDs(groups[0].Records))
	assert.Equal(t, []string{"2"}, recordIDs(groups[1].Records))
	assert.Equal(t, []string{"4"}, recordIDs(groups[2].Records))
}

func TestGroupByCoordinate_NegativeZeroSharesGroup(t *testing.T) {
	negZero := math.Copysign(0, -1)
	key := KeyOf(Record{Latitude: 51.5, Longitude: negZero})

	assert.False(t, math.Signbit(key.Lng))
	assert.Equal(t, KeyOf(Record{Latitude: 51.5, Longitude: 0}), key)
	assert.Equal(t, "51.5,0", key.String())
}

func TestGroupByCoordinate_PartitionsFilteredInput(t *testing.T) {
	records := []Record{
		rec("1", "pothole", "high", 1, 1, "2025-01-01"),
		rec("2", "garbage", "high", 1, 1, "2025-01-02"),
		rec("3", "pothole", "low", 2, 2, "2025-01-03"),
		rec("4", "pothole", "low", 0, 0, "2025-01-04"),
		rec("5", "pothole", "medium", 1, 1, "2025-01-05"),
	}
	filtered := Apply(records, Filter{Type: "pothole"})

	first := GroupByCoordinate(filtered)
	second := GroupByCoordinate(filtered)

	total := 0
	for i, g := range first {
		total += g.Len()
		for _, r := range g.Records {
			assert.Equal(t, g.Key, KeyOf(r))
		}
		assert.Equal(t, recordIDs(g.Records), recordIDs(second[i].Records))
	}
	assert.Equal(t, 3, total)
}

func TestGroupAdvance_IsCyclic(t *testing.T) {
	g := &Group{Records: []Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	for i := 0; i < g.Len(); i++ {
		_, err := g.Advance(1)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, g.Cursor())

	_, _ = g.Advance(1)
	_, _ = g.Advance(-1)
	assert.Equal(t, 0, g.Cursor())

	cursor, _ := g.Advance(-1)
	assert.Equal(t, 2, cursor)

	_, err := g.Advance(2)
	assert.ErrorIs(t, err, ErrInvalidDirection)
	assert.Equal(t, 2, g.Cursor())
}

func recordIDs(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
