package mapview

import (
	"sort"
	"strings"
)

// Choice is one selectable filter value. Value is the normalized form a
// client sends back; Label is the first spelling seen in the data.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FilterChoices lists the distinct values present in each filter dimension.
type FilterChoices struct {
	Types     []Choice `json:"types"`
	Statuses  []Choice `json:"statuses"`
	Urgencies []Choice `json:"urgencies"`
}

// Choices collects filter options from records. Blank values are skipped;
// each list is sorted by label.
func Choices(records []Record) FilterChoices {
	types := newChoiceSet()
	statuses := newChoiceSet()
	urgencies := newChoiceSet()
	for _, r := range records {
		types.add(r.Type)
		statuses.add(r.Status)
		urgencies.add(r.Urgency)
	}
	return FilterChoices{
		Types:     types.list(),
		Statuses:  statuses.list(),
		Urgencies: urgencies.list(),
	}
}

type choiceSet struct {
	index map[string]int
	items []Choice
}

func newChoiceSet() *choiceSet {
	return &choiceSet{index: make(map[string]int)}
}

func (s *choiceSet) add(raw string) {
	value := Normalize(raw)
	if value == "" {
		return
	}
	if i, ok := s.index[value]; ok {
		s.items[i].Count++
		return
	}
	s.index[value] = len(s.items)
	s.items = append(s.items, Choice{Value: value, Label: strings.TrimSpace(raw), Count: 1})
}

func (s *choiceSet) list() []Choice {
	out := append([]Choice{}, s.items...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out
}
