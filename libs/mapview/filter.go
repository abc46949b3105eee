package mapview

import "strings"

// FilterAll is the selector value that disables a filter dimension.
const FilterAll = "all"

// Normalize canonicalizes a free-text value for comparison: trimmed,
// lowercased, internal whitespace runs replaced by a single hyphen.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Filter holds the three selector values. Empty selections count as "all".
type Filter struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Urgency string `json:"urgency"`
}

// Normalized returns the filter with every dimension canonicalized.
func (f Filter) Normalized() Filter {
	return Filter{
		Type:    normalizeSelection(f.Type),
		Status:  normalizeSelection(f.Status),
		Urgency: normalizeSelection(f.Urgency),
	}
}

// Matches reports whether the record passes all three dimensions.
func (f Filter) Matches(r Record) bool {
	n := f.Normalized()
	return dimensionMatches(n.Type, r.Type) &&
		dimensionMatches(n.Status, r.Status) &&
		dimensionMatches(n.Urgency, r.Urgency)
}

// Apply returns the records passing f, in input order.
func Apply(records []Record, f Filter) []Record {
	n := f.Normalized()
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if n.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func normalizeSelection(value string) string {
	n := Normalize(value)
	if n == "" {
		return FilterAll
	}
	return n
}

func dimensionMatches(selection, field string) bool {
	if selection == FilterAll {
		return true
	}
	return Normalize(field) == selection
}
