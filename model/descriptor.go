package model

// Filter control types.
const (
	FilterText   = "text"
	FilterSelect = "select"
)

// PageSummary is the navigation entry for one entity page.
type PageSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Entity string `json:"entity"`
	Route  string `json:"route"`
	Icon   string `json:"icon,omitempty"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field     string            `json:"field"`
	Label     string            `json:"label"`
	Type      string            `json:"type"`
	Width     string            `json:"width,omitempty"`
	Format    string            `json:"format,omitempty"`
	Primary   bool              `json:"primary,omitempty"`
	StatusMap map[string]string `json:"status_map,omitempty"`
}

// FilterDescriptor describes one filter control of the filter bar.
type FilterDescriptor struct {
	Key     string             `json:"key"`
	Label   string             `json:"label"`
	Type    string             `json:"type"`
	Options []OptionDescriptor `json:"options,omitempty"`
}

// OptionLabel returns the label of the option with the given value, or the
// value itself when no option matches.
func (f FilterDescriptor) OptionLabel(value string) string {
	for _, opt := range f.Options {
		if opt.Value == value {
			return opt.Label
		}
	}
	return value
}

// OptionDescriptor is a resolved option for select filters.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Metric is a presentation-ready KPI snapshot.
type Metric struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Value    any       `json:"value"`
	Icon     string    `json:"icon,omitempty"`
	Color    string    `json:"color,omitempty"`
	Trend    *float64  `json:"trend,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Alert    string    `json:"alert,omitempty"`
}

// Progress is a 0-100 progress value coloured against a threshold.
type Progress struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// ActionDescriptor describes a bulk action offered on the selection bar.
type ActionDescriptor struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Icon         string `json:"icon,omitempty"`
	Style        string `json:"style,omitempty"`
	Confirmation string `json:"confirmation,omitempty"`
	Enabled      bool   `json:"enabled"`
}
