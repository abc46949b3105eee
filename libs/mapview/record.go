package mapview

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Record is one complaint as returned by the complaints read endpoint.
type Record struct {
	ID           string
	Type         string
	Status       string
	Urgency      string
	Latitude     float64
	Longitude    float64
	Description  string
	ReporterName string
	ImageURL     string
	CreatedAt    time.Time
	// CreatedAtRaw keeps the transport value; it breaks ties when CreatedAt
	// could not be parsed.
	CreatedAtRaw string
}

// Located reports whether both coordinates are usable for spatial structures.
func (r Record) Located() bool {
	return validCoordinate(r.Latitude) && validCoordinate(r.Longitude)
}

// Point returns the record position in orb's (lng, lat) order.
func (r Record) Point() orb.Point {
	return orb.Point{r.Longitude, r.Latitude}
}

func validCoordinate(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

type recordJSON struct {
	ID            json.RawMessage `json:"id"`
	ComplaintType *string         `json:"complaint_type"`
	Status        *string         `json:"status"`
	Urgency       *string         `json:"urgency"`
	Latitude      json.RawMessage `json:"latitude"`
	Longitude     json.RawMessage `json:"longitude"`
	Description   *string         `json:"description"`
	Fullname      *string         `json:"fullname"`
	ImageURL      *string         `json:"image_url"`
	CreatedAt     *string         `json:"created_at"`
}

// UnmarshalJSON accepts the wire shape of the read endpoint. Coordinates may be
// numbers or numeric strings; anything else decodes to 0 so the record is
// treated as unlocated instead of failing the whole payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		ID:           opaqueID(raw.ID),
		Type:         deref(raw.ComplaintType),
		Status:       deref(raw.Status),
		Urgency:      deref(raw.Urgency),
		Latitude:     flexibleFloat(raw.Latitude),
		Longitude:    flexibleFloat(raw.Longitude),
		Description:  deref(raw.Description),
		ReporterName: deref(raw.Fullname),
		ImageURL:     strings.TrimSpace(deref(raw.ImageURL)),
		CreatedAtRaw: strings.TrimSpace(deref(raw.CreatedAt)),
	}
	r.CreatedAt, _ = ParseTimestamp(r.CreatedAtRaw)
	return nil
}

// MarshalJSON writes the record back in the read endpoint's wire shape.
func (r Record) MarshalJSON() ([]byte, error) {
	var image *string
	if r.ImageURL != "" {
		image = &r.ImageURL
	}
	createdAt := r.CreatedAtRaw
	if createdAt == "" && !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(map[string]any{
		"id":             r.ID,
		"complaint_type": r.Type,
		"status":         r.Status,
		"urgency":        r.Urgency,
		"latitude":       r.Latitude,
		"longitude":      r.Longitude,
		"description":    r.Description,
		"fullname":       r.ReporterName,
		"image_url":      image,
		"created_at":     createdAt,
	})
}

// DecodeRecords decodes either {"complaints": [...]} or a bare array.
func DecodeRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var envelope struct {
		Complaints []Record `json:"complaints"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Complaints == nil {
		return []Record{}, nil
	}
	return envelope.Complaints, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTimestamp understands RFC 3339 and Python's str(datetime) forms.
// Zone-less values are read as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func opaqueID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func flexibleFloat(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return ParseCoordinate(s)
}

// ParseCoordinate reads a coordinate stored as text. Invalid input yields 0,
// which marks the record as unlocated.
func ParseCoordinate(s string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
