package model

// Bulk action identifiers understood by the bulk action manager.
const (
	BulkReclassify = "reclassify"
	BulkEmail      = "email"
	BulkArchive    = "archive"
	BulkExport     = "export"
)

// DefinitionFile is the root structure of a definition file. Each file
// declares one or more entity pages.
type DefinitionFile struct {
	Version string           `yaml:"version" json:"version"`
	Pages   []PageDefinition `yaml:"pages"   json:"pages" validate:"dive"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// PageDefinition configures one generic entity page: which backend resource
// it manages, how it is scoped, and what the list, filters, KPIs and bulk
// actions look like.
type PageDefinition struct {
	ID                 string              `yaml:"id"                    json:"id"                    validate:"required"`
	Title              string              `yaml:"title"                 json:"title"                 validate:"required"`
	Entity             string              `yaml:"entity"                json:"entity"                validate:"required"`
	EntityPlural       string              `yaml:"entity_plural"         json:"entity_plural,omitempty"`
	Icon               string              `yaml:"icon"                  json:"icon,omitempty"`
	Route              string              `yaml:"route"                 json:"route,omitempty"`
	Endpoint           string              `yaml:"endpoint"              json:"endpoint"              validate:"required"`
	ScopeKey           string              `yaml:"scope_key"             json:"scope_key,omitempty"`
	ScopeRoot          string              `yaml:"scope_root"            json:"scope_root,omitempty"`
	RelatedLabel       string              `yaml:"related_label"         json:"related_label,omitempty"`
	SearchPlaceholder  string              `yaml:"search_placeholder"    json:"search_placeholder,omitempty"`
	RowsPerPageOptions []int               `yaml:"rows_per_page_options" json:"rows_per_page_options,omitempty" validate:"dive,gt=0"`
	Columns            []ColumnDefinition  `yaml:"columns"               json:"columns"               validate:"required,min=1,dive"`
	Filters            []FilterDefinition  `yaml:"filters"               json:"filters,omitempty"     validate:"dive"`
	KPIs               []MetricDefinition  `yaml:"kpis"                  json:"kpis,omitempty"        validate:"dive"`
	BulkActions        []string            `yaml:"bulk_actions"          json:"bulk_actions,omitempty" validate:"dive,oneof=reclassify email archive export"`
}

// ColumnDefinition describes a table column.
type ColumnDefinition struct {
	Field     string            `yaml:"field"      json:"field"  validate:"required"`
	Label     string            `yaml:"label"      json:"label"  validate:"required"`
	Type      string            `yaml:"type"       json:"type,omitempty"`
	Width     string            `yaml:"width"      json:"width,omitempty"`
	Format    string            `yaml:"format"     json:"format,omitempty"`
	Primary   bool              `yaml:"primary"    json:"primary,omitempty"`
	StatusMap map[string]string `yaml:"status_map" json:"status_map,omitempty"`
}

// FilterDefinition describes a filter control above the list.
type FilterDefinition struct {
	Key     string         `yaml:"key"     json:"key"   validate:"required"`
	Label   string         `yaml:"label"   json:"label" validate:"required"`
	Type    string         `yaml:"type"    json:"type"  validate:"omitempty,oneof=text select"`
	Options []StaticOption `yaml:"options" json:"options,omitempty" validate:"dive"`
}

// StaticOption is a label/value pair for select filters.
type StaticOption struct {
	Label string `yaml:"label" json:"label" validate:"required"`
	Value string `yaml:"value" json:"value"`
}

// MetricDefinition maps a field of the scope dashboard payload to a KPI card.
// Paths are dot-separated (e.g. "students.active").
type MetricDefinition struct {
	Key               string  `yaml:"key"                json:"key"        validate:"required"`
	Label             string  `yaml:"label"              json:"label"      validate:"required"`
	Icon              string  `yaml:"icon"               json:"icon,omitempty"`
	Color             string  `yaml:"color"              json:"color,omitempty"`
	ValuePath         string  `yaml:"value_path"         json:"value_path" validate:"required"`
	Format            string  `yaml:"format"             json:"format,omitempty" validate:"omitempty,oneof=number percent currency"`
	TrendPath         string  `yaml:"trend_path"         json:"trend_path,omitempty"`
	ProgressPath      string  `yaml:"progress_path"      json:"progress_path,omitempty"`
	ProgressThreshold float64 `yaml:"progress_threshold" json:"progress_threshold,omitempty" validate:"gte=0,lte=100"`
	SubtitlePath      string  `yaml:"subtitle_path"      json:"subtitle_path,omitempty"`
	AlertPath         string  `yaml:"alert_path"         json:"alert_path,omitempty"`
}

// FilterDescriptors converts the filter definitions to descriptors.
func (p PageDefinition) FilterDescriptors() []FilterDescriptor {
	out := make([]FilterDescriptor, 0, len(p.Filters))
	for _, f := range p.Filters {
		fd := FilterDescriptor{Key: f.Key, Label: f.Label, Type: f.Type}
		if fd.Type == "" {
			fd.Type = FilterText
		}
		for _, o := range f.Options {
			fd.Options = append(fd.Options, OptionDescriptor{Label: o.Label, Value: o.Value})
		}
		out = append(out, fd)
	}
	return out
}

// ColumnDescriptors converts the column definitions to descriptors.
func (p PageDefinition) ColumnDescriptors() []ColumnDescriptor {
	out := make([]ColumnDescriptor, 0, len(p.Columns))
	for _, c := range p.Columns {
		cd := ColumnDescriptor{
			Field:     c.Field,
			Label:     c.Label,
			Type:      c.Type,
			Width:     c.Width,
			Format:    c.Format,
			Primary:   c.Primary,
			StatusMap: c.StatusMap,
		}
		if cd.Type == "" {
			cd.Type = "text"
		}
		out = append(out, cd)
	}
	return out
}

// HasBulkAction reports whether the page enables the given bulk action.
func (p PageDefinition) HasBulkAction(id string) bool {
	for _, a := range p.BulkActions {
		if a == id {
			return true
		}
	}
	return false
}
