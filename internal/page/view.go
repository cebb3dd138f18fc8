package page

import (
	"fmt"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/filter"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/kpi"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// View is the fully resolved state of a page, ready to render.
type View struct {
	Page               model.PageSummary          `json:"page"`
	Scope              string                     `json:"scope"`
	Status             Status                     `json:"status"`
	Layout             Layout                     `json:"layout"`
	Columns            []model.ColumnDescriptor   `json:"columns"`
	Entities           []model.Entity             `json:"entities"`
	Total              int                        `json:"total"`
	Query              model.Query                `json:"query"`
	RowsPerPageOptions []int                      `json:"rows_per_page_options"`
	SearchPlaceholder  string                     `json:"search_placeholder"`
	Filters            FilterView                 `json:"filters"`
	KPIs               []kpi.Block                `json:"kpis"`
	Selection          SelectionView              `json:"selection"`
	BulkActions        []model.ActionDescriptor   `json:"bulk_actions"`
	Modals             map[string]bool            `json:"modals"`
	Focus              string                     `json:"focus,omitempty"`
	Export             transfer.ExportDialogState `json:"export"`
	Import             transfer.ImportDialogState `json:"import"`
	Notifications      []Notification             `json:"notifications"`
}

// FilterView is the filter bar part of a view.
type FilterView struct {
	Search      string           `json:"search"`
	Controls    []filter.Control `json:"controls"`
	ActiveCount int              `json:"active_count"`
	Chips       []filter.Chip    `json:"chips"`
}

// SelectionView is the bulk selection part of a view.
type SelectionView struct {
	IDs         []string `json:"ids"`
	Count       int      `json:"count"`
	AllSelected bool     `json:"all_selected"`
	Processing  bool     `json:"processing"`
}

// View resolves the page for a viewport width.
func (p *Page) View(width int) View {
	s := p.entities.Snapshot()
	bar := p.Bar()

	var metrics any
	if s.KPIs != nil {
		metrics = kpi.Compute(s.KPIs, p.def.KPIs)
	}

	v := View{
		Page: model.PageSummary{
			ID:     p.def.ID,
			Title:  p.def.Title,
			Entity: p.def.Entity,
			Route:  p.def.Route,
			Icon:   p.def.Icon,
		},
		Scope:              s.Scope,
		Status:             StatusFor(s),
		Layout:             LayoutFor(width),
		Columns:            p.def.ColumnDescriptors(),
		Entities:           s.Entities,
		Total:              s.Total,
		Query:              s.Query,
		RowsPerPageOptions: p.def.RowsPerPageOptions,
		SearchPlaceholder:  p.def.SearchPlaceholder,
		Filters: FilterView{
			Search:      bar.Search(),
			Controls:    bar.Controls(),
			ActiveCount: bar.ActiveCount(),
			Chips:       bar.Chips(),
		},
		KPIs:          kpi.Render(metrics, s.KPILoading, len(p.def.KPIs)),
		Export:        p.export.State(),
		Import:        p.imports.State(),
		Notifications: p.notifier.Active(now()),
	}

	if v.Status == StatusPopulated {
		v.Selection = SelectionView{
			IDs:         p.bulk.Selected(),
			AllSelected: p.bulk.AllSelected(),
			Processing:  p.bulk.Processing(),
		}
		v.Selection.Count = len(v.Selection.IDs)
	} else {
		v.Selection.IDs = []string{}
	}
	v.BulkActions = p.actionDescriptors(v.Selection)

	p.mu.Lock()
	v.Modals = make(map[string]bool, len(modalNames))
	for _, name := range modalNames {
		v.Modals[name] = p.modals[name]
	}
	v.Focus = p.focus
	p.mu.Unlock()

	return v
}

func (p *Page) actionDescriptors(sel SelectionView) []model.ActionDescriptor {
	enabled := sel.Count > 0 && !sel.Processing
	out := make([]model.ActionDescriptor, 0, len(p.def.BulkActions))
	for _, id := range p.def.BulkActions {
		a := model.ActionDescriptor{ID: id, Enabled: enabled}
		switch id {
		case model.BulkReclassify:
			a.Label = "Change " + p.def.RelatedLabel
			a.Icon = "swap_horiz"
		case model.BulkEmail:
			a.Label = "Send email"
			a.Icon = "mail"
		case model.BulkArchive:
			a.Label = "Archive"
			a.Icon = "archive"
			a.Style = "danger"
			a.Confirmation = fmt.Sprintf("Archive %d %s?", sel.Count, p.def.EntityPlural)
		case model.BulkExport:
			a.Label = "Export"
			a.Icon = "download"
		}
		out = append(out, a)
	}
	return out
}
