package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// ExportDialogState is a snapshot of the export dialog.
type ExportDialogState struct {
	Open     bool               `json:"open"`
	Format   model.ExportFormat `json:"format"`
	IDs      []string           `json:"ids,omitempty"`
	InFlight bool               `json:"in_flight"`
	Error    string             `json:"error,omitempty"`
	Closing  bool               `json:"closing"`
	Last     *model.Download    `json:"last,omitempty"`
}

// ExportDialog holds the export dialog state: chosen format, in-flight flag
// and inline error. A successful export closes the dialog after a delay.
type ExportDialog struct {
	exporter  *Exporter
	endpoint  string
	autoClose time.Duration

	mu      sync.Mutex
	state   ExportDialogState
	filters map[string]any
	session uint64
	timer   *time.Timer
}

// NewExportDialog creates a closed export dialog for endpoint.
func NewExportDialog(exporter *Exporter, endpoint string, autoClose time.Duration) *ExportDialog {
	return &ExportDialog{
		exporter:  exporter,
		endpoint:  endpoint,
		autoClose: autoClose,
		state:     ExportDialogState{Format: model.FormatCSV},
	}
}

// Open shows the dialog for an explicit id list or, when ids is empty, the
// given filters.
func (d *ExportDialog) Open(ids []string, filters map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.session++
	d.state = ExportDialogState{
		Open:   true,
		Format: d.state.Format,
		IDs:    append([]string(nil), ids...),
	}
	d.filters = (model.Query{Filters: filters}).Clone().Filters
}

// SetFormat chooses the export format.
func (d *ExportDialog) SetFormat(f model.ExportFormat) {
	d.mu.Lock()
	d.state.Format = f
	d.mu.Unlock()
}

// Submit runs the export into sink. Failures stay inline and keep the dialog
// open; success schedules the auto-close.
func (d *ExportDialog) Submit(ctx context.Context, sink Sink) model.Result {
	d.mu.Lock()
	if d.state.InFlight {
		d.mu.Unlock()
		return model.Failed(model.NewConflictError("An export is already in progress"), "")
	}
	d.state.InFlight = true
	d.state.Error = ""
	req := ExportRequest{
		Endpoint: d.endpoint,
		Format:   d.state.Format,
		IDs:      d.state.IDs,
		Filters:  d.filters,
	}
	session := d.session
	d.mu.Unlock()

	res := d.exporter.Export(ctx, req, sink)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.InFlight = false
	switch {
	case res.Success:
		if dl, ok := res.Data.(model.Download); ok {
			d.state.Last = &dl
		}
		d.state.Closing = true
		d.scheduleCloseLocked(session)
	case ctx.Err() == nil:
		d.state.Error = res.Error
	}
	return res
}

// DismissError clears the inline error.
func (d *ExportDialog) DismissError() {
	d.mu.Lock()
	d.state.Error = ""
	d.mu.Unlock()
}

// Cancel closes the dialog. It is refused while an export is in flight.
func (d *ExportDialog) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.InFlight {
		return model.NewConflictError("Cannot close while an export is in progress")
	}
	d.closeLocked()
	return nil
}

// State returns a snapshot.
func (d *ExportDialog) State() ExportDialogState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.IDs = append([]string(nil), d.state.IDs...)
	return s
}

func (d *ExportDialog) scheduleCloseLocked(session uint64) {
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.autoClose, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.session == session && !d.state.InFlight {
			d.closeLocked()
		}
	})
}

func (d *ExportDialog) closeLocked() {
	d.stopTimerLocked()
	d.session++
	d.state = ExportDialogState{Format: d.state.Format}
	d.filters = nil
}

func (d *ExportDialog) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Import dialog modes.
const (
	ModeValidate = "validate"
	ModeImport   = "import"
)

// ImportDialogState is a snapshot of the import dialog.
type ImportDialogState struct {
	Open           bool                `json:"open"`
	Scope          string              `json:"scope,omitempty"`
	FileName       string              `json:"file_name,omitempty"`
	FileSize       int                 `json:"file_size,omitempty"`
	Mode           string              `json:"mode,omitempty"`
	InFlight       bool                `json:"in_flight"`
	Result         *model.ImportResult `json:"result,omitempty"`
	ErrorsExpanded bool                `json:"errors_expanded"`
	Error          string              `json:"error,omitempty"`
	Closing        bool                `json:"closing"`
}

// ImportDialog holds the import dialog state: selected file, dry-run or
// import result, expandable row errors and inline error. A real import with
// no failed rows calls onSuccess and closes after a delay.
type ImportDialog struct {
	importer  *Importer
	exporter  *Exporter
	endpoint  string
	autoClose time.Duration
	onSuccess func(model.Result)

	mu      sync.Mutex
	state   ImportDialogState
	file    *File
	session uint64
	timer   *time.Timer
}

// NewImportDialog creates a closed import dialog for endpoint.
func NewImportDialog(importer *Importer, exporter *Exporter, endpoint string, autoClose time.Duration, onSuccess func(model.Result)) *ImportDialog {
	return &ImportDialog{
		importer:  importer,
		exporter:  exporter,
		endpoint:  endpoint,
		autoClose: autoClose,
		onSuccess: onSuccess,
	}
}

// Open shows the dialog bound to scope.
func (d *ImportDialog) Open(scope string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.session++
	d.file = nil
	d.state = ImportDialogState{Open: true, Scope: scope}
}

// Rebind moves an open dialog to another scope. A dry-run result for the old
// scope is discarded; the selected file is kept.
func (d *ImportDialog) Rebind(scope string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Open || d.state.Scope == scope {
		return
	}
	d.state.Scope = scope
	d.state.Result = nil
	d.state.ErrorsExpanded = false
}

// SelectFile picks the file to import, from the picker or a drop. A file that
// fails the type or size check is rejected with an inline error.
func (d *ImportDialog) SelectFile(f File) error {
	if err := d.importer.CheckFile(f); err != nil {
		d.mu.Lock()
		d.state.Error = model.Failed(err, "").Error
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.file = &f
	d.state.FileName = f.Name
	d.state.FileSize = len(f.Data)
	d.state.Result = nil
	d.state.ErrorsExpanded = false
	d.state.Error = ""
	return nil
}

// Validate runs a dry run of the selected file.
func (d *ImportDialog) Validate(ctx context.Context) model.Result {
	return d.run(ctx, true)
}

// Import runs the real import of the selected file.
func (d *ImportDialog) Import(ctx context.Context) model.Result {
	return d.run(ctx, false)
}

func (d *ImportDialog) run(ctx context.Context, dryRun bool) model.Result {
	d.mu.Lock()
	if d.state.InFlight {
		d.mu.Unlock()
		return model.Failed(model.NewConflictError("An import is already in progress"), "")
	}
	if d.file == nil {
		d.state.Error = "Please select a file"
		d.mu.Unlock()
		return model.Failed(model.NewValidationError("Please select a file"), "")
	}
	d.state.InFlight = true
	d.state.Error = ""
	d.state.Mode = ModeImport
	if dryRun {
		d.state.Mode = ModeValidate
	}
	req := ImportRequest{Endpoint: d.endpoint, Scope: d.state.Scope, File: *d.file, DryRun: dryRun}
	session := d.session
	d.mu.Unlock()

	res := d.importer.Import(ctx, req)

	d.mu.Lock()
	d.state.InFlight = false
	succeeded := false
	switch {
	case res.Success:
		if ir, ok := res.Data.(model.ImportResult); ok {
			d.state.Result = &ir
			succeeded = !dryRun && ir.Failed == 0
		}
		if succeeded {
			d.state.Closing = true
			d.scheduleCloseLocked(session)
		}
	case ctx.Err() == nil:
		d.state.Error = res.Error
	}
	d.mu.Unlock()

	if succeeded && d.onSuccess != nil {
		d.onSuccess(res)
	}
	return res
}

// ToggleErrors expands or collapses the per-row error list.
func (d *ImportDialog) ToggleErrors() {
	d.mu.Lock()
	d.state.ErrorsExpanded = !d.state.ErrorsExpanded
	d.mu.Unlock()
}

// DismissError clears the inline error.
func (d *ImportDialog) DismissError() {
	d.mu.Lock()
	d.state.Error = ""
	d.mu.Unlock()
}

// Template downloads the import template; failures show inline.
func (d *ImportDialog) Template(ctx context.Context, format model.ExportFormat, sink Sink) model.Result {
	res := d.exporter.Template(ctx, d.endpoint, format, sink)
	if !res.Success && ctx.Err() == nil {
		d.mu.Lock()
		d.state.Error = res.Error
		d.mu.Unlock()
	}
	return res
}

// Cancel closes the dialog. It is refused while a request is in flight.
func (d *ImportDialog) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.InFlight {
		return model.NewConflictError("Cannot close while an import is in progress")
	}
	d.closeLocked()
	return nil
}

// State returns a snapshot.
func (d *ImportDialog) State() ImportDialogState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *ImportDialog) scheduleCloseLocked(session uint64) {
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.autoClose, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.session == session && !d.state.InFlight {
			d.closeLocked()
		}
	})
}

func (d *ImportDialog) closeLocked() {
	d.stopTimerLocked()
	d.session++
	d.file = nil
	d.state = ImportDialogState{}
}

func (d *ImportDialog) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
