// Package page composes the entity manager, bulk actions, filter bar, KPI
// summary and transfer dialogs into one parameterized entity page, and keeps
// the open pages of the console.
package page

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/bulk"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/entity"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/filter"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Modal names.
const (
	ModalForm       = "form"
	ModalDetail     = "detail"
	ModalReclassify = "reclassify"
	ModalEmail      = "email"
	ModalArchive    = "archive"
	ModalExport     = "export"
	ModalImport     = "import"
)

var modalNames = []string{ModalForm, ModalDetail, ModalReclassify, ModalEmail, ModalArchive, ModalExport, ModalImport}

// API is the school API surface a page uses.
type API interface {
	entity.API
	transfer.API
}

// Deps are the shared dependencies of every page.
type Deps struct {
	API           API
	Entity        config.EntityConfig
	Transfer      config.TransferConfig
	Notifications config.NotificationConfig
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// Page is one open generic entity page.
type Page struct {
	def      model.PageDefinition
	filters  filter.Source
	entities *entity.Manager
	bulk     *bulk.Manager
	export   *transfer.ExportDialog
	imports  *transfer.ImportDialog
	exporter *transfer.Exporter
	notifier *Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	unsub    func()

	mu      sync.Mutex
	modals  map[string]bool
	focus   string
	lastIDs []string
	lastSeq uint64
	closed  bool
}

// New builds a page for def. The page is idle until Open.
func New(def model.PageDefinition, deps Deps) (*Page, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("page", def.ID))

	rows := deps.Entity.DefaultRowsPerPage
	if len(def.RowsPerPageOptions) > 0 && !containsInt(def.RowsPerPageOptions, rows) {
		rows = def.RowsPerPageOptions[0]
	}

	em, err := entity.NewManager(deps.API, rows, entity.Options{
		Endpoint:       def.Endpoint,
		Entity:         strings.ToLower(def.Entity),
		ScopeKey:       def.ScopeKey,
		ScopeRoot:      def.ScopeRoot,
		ScopePattern:   deps.Entity.ScopePattern,
		SearchDebounce: deps.Entity.SearchDebounce,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", def.ID, err)
	}

	exporter := transfer.NewExporter(deps.API, logger, deps.Metrics)
	importer := transfer.NewImporter(deps.API, deps.Transfer, em.ValidScope, logger, deps.Metrics)

	p := &Page{
		def:      def,
		filters:  filter.Static(def.FilterDescriptors()),
		entities: em,
		bulk: bulk.NewManager(deps.API, exporter, bulk.Options{
			Endpoint:     def.Endpoint,
			EntityPlural: def.EntityPlural,
			Logger:       logger,
			Metrics:      deps.Metrics,
		}),
		export:   transfer.NewExportDialog(exporter, def.Endpoint, deps.Transfer.AutoCloseDelay),
		exporter: exporter,
		notifier: NewNotifier(deps.Notifications.TTL, deps.Notifications.MaxActive, deps.Metrics),
		logger:   logger,
		metrics:  deps.Metrics,
		modals:   make(map[string]bool, len(modalNames)),
	}
	p.imports = transfer.NewImportDialog(importer, exporter, def.Endpoint, deps.Transfer.AutoCloseDelay, func(model.Result) {
		p.setModal(ModalImport, false)
	})
	p.unsub = em.Subscribe(p.onListChange)
	return p, nil
}

// Definition returns the page definition.
func (p *Page) Definition() model.PageDefinition { return p.def }

// Scope returns the scope the page is bound to.
func (p *Page) Scope() string { return p.entities.Snapshot().Scope }

// Notifier returns the page notifications.
func (p *Page) Notifier() *Notifier { return p.notifier }

// Open binds the page to scope and loads the list and KPIs.
func (p *Page) Open(ctx context.Context, scope string) {
	p.metrics.PageOpened()
	observability.RequestLogger(ctx, p.logger).Info("page opened",
		zap.String("scope", scope),
		zap.Bool("valid_scope", p.entities.ValidScope(scope)),
	)
	p.entities.Load(ctx, scope)
}

// Close aborts outstanding fetches. The page cannot be reused.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.unsub()
	p.entities.Close()
	p.metrics.PageClosed()
	p.logger.Info("page closed")
}

// SetScope rebinds the page to another scope: back to the first page, list
// and KPIs refetched, outstanding fetches for the old scope aborted.
func (p *Page) SetScope(ctx context.Context, scope string) {
	p.entities.SetScope(scope)
	p.imports.Rebind(scope)
	q := p.entities.Snapshot().Query
	q.Page = 0
	p.entities.Schedule(q, entity.OriginScope)
	p.entities.FetchKPIs(ctx, scope)
	p.logger.Debug("scope changed", zap.String("scope", scope))
}

// SetSearch changes the free-text search. Non-empty text is debounced.
func (p *Page) SetSearch(text string) {
	q := p.entities.Snapshot().Query
	q.Search = text
	q.Page = 0
	p.entities.Schedule(q, entity.OriginSearch)
}

// SetFilter changes one filter value. An empty value clears the filter.
func (p *Page) SetFilter(key string, value any) {
	p.Bar().Change(key, value)
}

// RemoveFilter clears exactly one filter, as removing its chip does.
func (p *Page) RemoveFilter(key string) {
	p.Bar().RemoveChip(key)
}

// ResetFilters clears every filter and the search together.
func (p *Page) ResetFilters() {
	p.Bar().Reset()
}

// Bar returns the filter bar over the current query.
func (p *Page) Bar() *filter.Bar {
	q := p.entities.Snapshot().Query
	return filter.NewBar(p.filters.List(), q.Filters, q.Search, p.applyFilter, p.resetFilters)
}

func (p *Page) applyFilter(key string, value any) {
	q := p.entities.Snapshot().Query
	if q.Filters == nil {
		q.Filters = make(map[string]any)
	}
	if _, active := model.FilterValueString(value); active {
		q.Filters[key] = value
	} else {
		delete(q.Filters, key)
	}
	q.Page = 0
	p.entities.Schedule(q, entity.OriginQuery)
}

func (p *Page) resetFilters() {
	q := p.entities.Snapshot().Query
	q.Filters = nil
	q.Search = ""
	q.Page = 0
	p.entities.Schedule(q, entity.OriginQuery)
}

// SetPage moves to a zero-based page.
func (p *Page) SetPage(n int) error {
	if n < 0 {
		return model.NewValidationError("page must not be negative")
	}
	q := p.entities.Snapshot().Query
	q.Page = n
	p.entities.Schedule(q, entity.OriginQuery)
	return nil
}

// SetRowsPerPage changes the page size and goes back to the first page.
func (p *Page) SetRowsPerPage(n int) error {
	if n <= 0 || (len(p.def.RowsPerPageOptions) > 0 && !containsInt(p.def.RowsPerPageOptions, n)) {
		return model.Errorf(model.ErrValidationError, "rows per page must be one of %v", p.def.RowsPerPageOptions)
	}
	q := p.entities.Snapshot().Query
	q.RowsPerPage = n
	q.Page = 0
	p.entities.Schedule(q, entity.OriginQuery)
	return nil
}

// Create posts a new entity and closes the form on success.
func (p *Page) Create(ctx context.Context, payload map[string]any) model.Result {
	return p.settle(ctx, p.entities.Create(ctx, payload), ModalForm)
}

// Update saves changes to id and closes the form on success.
func (p *Page) Update(ctx context.Context, id string, payload map[string]any) model.Result {
	return p.settle(ctx, p.entities.Update(ctx, id, payload), ModalForm)
}

// Archive soft-deletes one entity and closes the detail drawer on success.
func (p *Page) Archive(ctx context.Context, id string) model.Result {
	return p.settle(ctx, p.entities.Archive(ctx, id), ModalDetail)
}

// Toggle flips the selection of one loaded entity.
func (p *Page) Toggle(id string) { p.bulk.Toggle(id) }

// SelectAll selects every loaded entity, or none.
func (p *Page) SelectAll(checked bool) { p.bulk.SelectAll(checked) }

// ClearSelection empties the selection.
func (p *Page) ClearSelection() { p.bulk.Clear() }

// BulkReclassify moves the selection to another related group.
func (p *Page) BulkReclassify(ctx context.Context, newRelatedID string) model.Result {
	if res, ok := p.bulkEnabled(model.BulkReclassify); !ok {
		return res
	}
	return p.settle(ctx, p.bulk.Reclassify(ctx, newRelatedID), ModalReclassify)
}

// BulkEmail emails the selection.
func (p *Page) BulkEmail(ctx context.Context, subject, message string) model.Result {
	if res, ok := p.bulkEnabled(model.BulkEmail); !ok {
		return res
	}
	return p.settle(ctx, p.bulk.Email(ctx, subject, message), ModalEmail)
}

// RequestBulkArchive asks for confirmation of a bulk archive by opening the
// archive modal. Nothing is sent until ConfirmBulkArchive.
func (p *Page) RequestBulkArchive() model.Result {
	if res, ok := p.bulkEnabled(model.BulkArchive); !ok {
		return res
	}
	n := len(p.bulk.Selected())
	if n == 0 {
		return model.Failed(model.NewValidationError("Please select at least one item"), "")
	}
	p.setModal(ModalArchive, true)
	return model.Succeeded(fmt.Sprintf("Archive %d %s?", n, p.def.EntityPlural), nil)
}

// ConfirmBulkArchive runs the bulk archive confirmed through the archive
// modal.
func (p *Page) ConfirmBulkArchive(ctx context.Context) model.Result {
	if res, ok := p.bulkEnabled(model.BulkArchive); !ok {
		return res
	}
	if !p.modalOpen(ModalArchive) {
		return model.Failed(model.NewValidationError("Bulk archive must be confirmed first"), "")
	}
	return p.settle(ctx, p.bulk.Archive(ctx), ModalArchive)
}

// BulkExport downloads the selected entities into sink. The selection is
// kept.
func (p *Page) BulkExport(ctx context.Context, format model.ExportFormat, sink transfer.Sink) model.Result {
	if res, ok := p.bulkEnabled(model.BulkExport); !ok {
		return res
	}
	return p.settle(ctx, p.bulk.Export(ctx, format, sink), "")
}

// Export runs the export dialog: the selected ids when there is a selection,
// else the active filters. The dialog opens if it is not open yet.
func (p *Page) Export(ctx context.Context, format model.ExportFormat, sink transfer.Sink) model.Result {
	if !p.export.State().Open {
		p.openExport()
	}
	p.export.SetFormat(format)
	res := p.export.Submit(ctx, sink)
	if res.Success {
		p.setModal(ModalExport, false)
	}
	return p.settle(ctx, res, "")
}

// Import runs the import dialog on f, as a dry run or for real. A real
// import that imported rows refetches list and KPIs.
func (p *Page) Import(ctx context.Context, f transfer.File, dryRun bool) model.Result {
	if !p.imports.State().Open {
		p.setModal(ModalImport, true)
		p.imports.Open(p.Scope())
	}
	if err := p.imports.SelectFile(f); err != nil {
		return p.settle(ctx, model.Failed(err, ""), "")
	}
	var res model.Result
	if dryRun {
		res = p.imports.Validate(ctx)
	} else {
		res = p.imports.Import(ctx)
	}
	return p.settle(ctx, res, "")
}

// Template downloads the import template for format.
func (p *Page) Template(ctx context.Context, format model.ExportFormat, sink transfer.Sink) model.Result {
	return p.exporter.Template(ctx, p.def.Endpoint, format, sink)
}

// SetModal opens or closes a modal. entityID selects the entity shown by the
// form (edit) or detail drawer. Closing the export or import dialog is
// refused while it has a request in flight.
func (p *Page) SetModal(name string, open bool, entityID string) error {
	if !validModal(name) {
		return model.Errorf(model.ErrValidationError, "unknown modal %q", name)
	}
	switch name {
	case ModalExport:
		if open {
			p.openExport()
			return nil
		}
		if err := p.export.Cancel(); err != nil {
			return err
		}
	case ModalImport:
		if open {
			p.imports.Open(p.Scope())
		} else if err := p.imports.Cancel(); err != nil {
			return err
		}
	case ModalDetail:
		if open && entityID == "" {
			return model.NewValidationError("An id is required")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.modals[name] = open
	if name == ModalForm || name == ModalDetail {
		if open {
			p.focus = entityID
		} else {
			p.focus = ""
		}
	}
	return nil
}

func (p *Page) openExport() {
	q := p.entities.Snapshot().Query
	p.export.Open(p.bulk.Selected(), q.Filters)
	p.setModal(ModalExport, true)
}

func (p *Page) setModal(name string, open bool) {
	p.mu.Lock()
	p.modals[name] = open
	p.mu.Unlock()
}

func (p *Page) modalOpen(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modals[name]
}

// settle turns an operation result into user feedback: it closes the modal
// that started the operation on success, refetches what the result
// invalidates and queues a notification. Cancelled operations stay silent.
func (p *Page) settle(ctx context.Context, res model.Result, modal string) model.Result {
	if res.Success && modal != "" {
		p.setModal(modal, false)
		if modal == ModalForm || modal == ModalDetail {
			p.mu.Lock()
			p.focus = ""
			p.mu.Unlock()
		}
	}
	if len(res.Invalidate) > 0 {
		p.entities.Invalidate(ctx, res.Invalidate...)
	}
	if ctx.Err() != nil || res.Code == model.ErrSessionExpired {
		return res
	}
	p.notifier.Result(res)
	return res
}

func (p *Page) bulkEnabled(action string) (model.Result, bool) {
	if p.def.HasBulkAction(action) {
		return model.Result{}, true
	}
	return model.Failed(model.Errorf(model.ErrBadRequest, "Bulk %s is not available on this page", action), ""), false
}

// onListChange rebinds the selection whenever the loaded ids change.
// Snapshots older than the last one seen are dropped.
func (p *Page) onListChange(s entity.State) {
	ids := model.EntityIDs(s.Entities)
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Seq != 0 {
		if s.Seq <= p.lastSeq {
			return
		}
		p.lastSeq = s.Seq
	}
	if equalStrings(ids, p.lastIDs) {
		return
	}
	p.lastIDs = ids
	p.bulk.Reset(ids)
}

func validModal(name string) bool {
	for _, m := range modalNames {
		if m == name {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// now is swapped in tests.
var now = time.Now
