package filter

import (
	"sort"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Control is one rendered filter control with its current value.
type Control struct {
	model.FilterDescriptor
	Value string `json:"value"`
}

// Chip is an active filter shown as a removable chip.
type Chip struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Bar is the filter and search bar over a set of descriptors and the
// current values. Changes are reported through the callbacks; the bar
// itself does not keep state beyond what it was built with.
type Bar struct {
	descriptors []model.FilterDescriptor
	values      map[string]any
	search      string

	onChange func(key string, value any)
	onReset  func()
}

// NewBar builds a bar. onChange receives every (key, value) change, including
// chip removal with an empty value. onReset clears filters and search.
func NewBar(descriptors []model.FilterDescriptor, values map[string]any, search string, onChange func(key string, value any), onReset func()) *Bar {
	return &Bar{
		descriptors: descriptors,
		values:      values,
		search:      search,
		onChange:    onChange,
		onReset:     onReset,
	}
}

// Search returns the free-text search.
func (b *Bar) Search() string { return b.search }

// Controls returns one control per descriptor.
func (b *Bar) Controls() []Control {
	out := make([]Control, 0, len(b.descriptors))
	for _, d := range b.descriptors {
		v, _ := model.FilterValueString(b.values[d.Key])
		out = append(out, Control{FilterDescriptor: d, Value: v})
	}
	return out
}

// ActiveCount returns how many filters carry a value.
func (b *Bar) ActiveCount() int {
	n := 0
	for _, v := range b.values {
		if _, ok := model.FilterValueString(v); ok {
			n++
		}
	}
	return n
}

// Chips returns the active filters, in descriptor order, with their labels
// and display values. Values for unknown keys follow, sorted by key.
func (b *Bar) Chips() []Chip {
	var chips []Chip
	known := make(map[string]bool, len(b.descriptors))
	for _, d := range b.descriptors {
		known[d.Key] = true
		v, ok := model.FilterValueString(b.values[d.Key])
		if !ok {
			continue
		}
		display := v
		if d.Type == model.FilterSelect {
			display = d.OptionLabel(v)
		}
		chips = append(chips, Chip{Key: d.Key, Label: d.Label, Value: display})
	}

	var extra []string
	for k, v := range b.values {
		if _, ok := model.FilterValueString(v); ok && !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		v, _ := model.FilterValueString(b.values[k])
		chips = append(chips, Chip{Key: k, Label: k, Value: v})
	}
	return chips
}

// Change reports a new value for key.
func (b *Bar) Change(key string, value any) {
	if b.onChange != nil {
		b.onChange(key, value)
	}
}

// RemoveChip clears exactly the filter key.
func (b *Bar) RemoveChip(key string) {
	b.Change(key, "")
}

// Reset clears every filter and the search together.
func (b *Bar) Reset() {
	if b.onReset != nil {
		b.onReset()
	}
}
