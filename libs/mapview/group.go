package mapview

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
)

// Key identifies a coordinate group by exact numeric equality.
type Key struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// KeyOf returns the group key for a located record.
func KeyOf(r Record) Key {
	// Adding zero folds -0 into +0 so both spellings share a group.
	return Key{Lat: r.Latitude + 0, Lng: r.Longitude + 0}
}

// Point returns the key position in orb's (lng, lat) order.
func (k Key) Point() orb.Point {
	return orb.Point{k.Lng, k.Lat}
}

func (k Key) String() string {
	return strconv.FormatFloat(k.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(k.Lng, 'f', -1, 64)
}

// Group is the set of records sharing one exact coordinate, with a
// pagination cursor over them.
type Group struct {
	Key     Key
	Records []Record
	cursor  int
}

// Len returns the number of records in the group.
func (g *Group) Len() int { return len(g.Records) }

// Cursor returns the 0-based index of the record currently shown.
func (g *Group) Cursor() int { return g.cursor }

// Current returns the record at the cursor.
func (g *Group) Current() Record { return g.Records[g.cursor] }

// Advance moves the cursor by direction (+1 or -1), wrapping modulo the group
// size, and returns the new cursor.
func (g *Group) Advance(direction int) (int, error) {
	if direction != 1 && direction != -1 {
		return g.cursor, fmt.Errorf("%w: %d", ErrInvalidDirection, direction)
	}
	n := len(g.Records)
	if n == 0 {
		return 0, nil
	}
	g.cursor = (g.cursor + direction + n) % n
	return g.cursor, nil
}

// GroupByCoordinate partitions located records by exact coordinate. Groups
// come back in first-appearance order and keep input order inside each group.
func GroupByCoordinate(records []Record) []*Group {
	index := make(map[Key]*Group)
	groups := make([]*Group, 0)
	for _, r := range records {
		if !r.Located() {
			continue
		}
		key := KeyOf(r)
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Records = append(g.Records, r)
	}
	return groups
}
