package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/page"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// pageHandlers serves the per-page UI events. Every response carries the
// page view after the event was applied.
type pageHandlers struct {
	pages     *page.Registry
	defs      *definition.Registry
	nav       *session.RecordingNavigator
	validate  *validator.Validate
	maxUpload int64
}

type pageResponse struct {
	Result *model.Result `json:"result,omitempty"`
	View   page.View     `json:"view"`
}

type queryRequest struct {
	Search      *string        `json:"search"`
	Filters     map[string]any `json:"filters"`
	Page        *int           `json:"page" validate:"omitempty,gte=0"`
	RowsPerPage *int           `json:"rows_per_page" validate:"omitempty,gt=0"`
}

type selectionRequest struct {
	Action  string `json:"action" validate:"required,oneof=toggle all clear"`
	ID      string `json:"id" validate:"required_if=Action toggle"`
	Checked bool   `json:"checked"`
}

type modalRequest struct {
	Open     bool   `json:"open"`
	EntityID string `json:"entity_id"`
}

type reclassifyRequest struct {
	RelatedID string `json:"related_id" validate:"required"`
}

type emailRequest struct {
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type exportRequest struct {
	Format   string `json:"format"`
	Selected bool   `json:"selected"`
}

func (h *pageHandlers) list(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"pages": h.defs.Summaries()})
}

func (h *pageHandlers) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.pages.Get(r.Context(), chi.URLParam(r, "pageId"), r.URL.Query().Get("scope"))
	if err != nil {
		WriteError(w, err)
		return
	}
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) query(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		WriteError(w, err)
		return
	}

	if req.Search != nil {
		p.SetSearch(*req.Search)
	}
	for key, value := range req.Filters {
		p.SetFilter(key, value)
	}
	if req.RowsPerPage != nil {
		if err := p.SetRowsPerPage(*req.RowsPerPage); err != nil {
			WriteError(w, err)
			return
		}
	}
	if req.Page != nil {
		if err := p.SetPage(*req.Page); err != nil {
			WriteError(w, err)
			return
		}
	}
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) removeFilter(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.RemoveFilter(chi.URLParam(r, "key"))
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) resetFilters(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.ResetFilters()
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) selection(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		WriteError(w, err)
		return
	}
	switch req.Action {
	case "toggle":
		p.Toggle(req.ID)
	case "all":
		p.SelectAll(req.Checked)
	case "clear":
		p.ClearSelection()
	}
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}
	res := p.Create(r.Context(), payload)
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	payload, ok := h.payload(w, r)
	if !ok {
		return
	}
	res := p.Update(r.Context(), chi.URLParam(r, "id"), payload)
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) archive(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	res := p.Archive(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) modal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req modalRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := p.SetModal(chi.URLParam(r, "modal"), req.Open, req.EntityID); err != nil {
		WriteError(w, err)
		return
	}
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) dismiss(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !p.Notifier().Dismiss(chi.URLParam(r, "id")) {
		WriteNotFound(w, "notification not found")
		return
	}
	h.respond(w, r, p, nil)
}

func (h *pageHandlers) bulk(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var res model.Result
	switch chi.URLParam(r, "action") {
	case model.BulkReclassify:
		var req reclassifyRequest
		if err := decodeBody(r, h.validate, &req); err != nil {
			WriteError(w, err)
			return
		}
		res = p.BulkReclassify(r.Context(), req.RelatedID)
	case model.BulkEmail:
		var req emailRequest
		if err := decodeBody(r, h.validate, &req); err != nil {
			WriteError(w, err)
			return
		}
		res = p.BulkEmail(r.Context(), req.Subject, req.Message)
	case model.BulkArchive:
		res = p.RequestBulkArchive()
	case "confirm-archive":
		res = p.ConfirmBulkArchive(r.Context())
	default:
		WriteNotFound(w, "unknown bulk action")
		return
	}
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) export(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req exportRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		WriteError(w, err)
		return
	}
	format, err := model.ParseExportFormat(req.Format)
	if err != nil {
		WriteError(w, err)
		return
	}

	sink := &responseSink{w: w}
	var res model.Result
	if req.Selected {
		res = p.BulkExport(r.Context(), format, sink)
	} else {
		res = p.Export(r.Context(), format, sink)
	}
	if sink.delivered {
		return
	}
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) importFile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	f, err := h.uploadedFile(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	res := p.Import(r.Context(), f, queryBool(r, "dry_run"))
	h.respond(w, r, p, &res)
}

func (h *pageHandlers) template(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	format, err := model.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		WriteError(w, err)
		return
	}

	sink := &responseSink{w: w}
	res := p.Template(r.Context(), format, sink)
	if sink.delivered {
		return
	}
	h.respond(w, r, p, &res)
}

// lookup resolves an open page or writes the error.
func (h *pageHandlers) lookup(w http.ResponseWriter, r *http.Request) (*page.Page, bool) {
	p, err := h.pages.Lookup(chi.URLParam(r, "pageId"))
	if err != nil {
		WriteError(w, err)
		return nil, false
	}
	return p, true
}

func (h *pageHandlers) payload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := decodeBody(r, h.validate, &payload); err != nil {
		WriteError(w, err)
		return nil, false
	}
	if len(payload) == 0 {
		WriteError(w, model.NewValidationError("Request body must not be empty"))
		return nil, false
	}
	return payload, true
}

// uploadedFile reads the "file" part of a multipart upload. Oversized files
// are read far enough for the importer to reject them with its own message.
func (h *pageHandlers) uploadedFile(w http.ResponseWriter, r *http.Request) (transfer.File, error) {
	limit := h.maxUpload
	if limit <= 0 {
		limit = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+(1<<20))
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return transfer.File{}, model.NewValidationError("File is too large")
		}
		return transfer.File{}, model.NewBadRequestError("Expected a multipart upload")
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		return transfer.File{}, model.NewValidationError("Please select a file")
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return transfer.File{}, model.NewBadRequestError("Could not read the uploaded file")
	}
	return transfer.File{Name: header.Filename, Data: data}, nil
}

// respond writes the page view, or the login redirect when the session
// expired while the event was handled. A failed operation is reported in
// the result, not in the status code.
func (h *pageHandlers) respond(w http.ResponseWriter, r *http.Request, p *page.Page, res *model.Result) {
	if loc := h.nav.Pending(); loc != "" {
		WriteRedirect(w, model.NewSessionExpiredError(), loc)
		return
	}
	WriteJSON(w, http.StatusOK, pageResponse{Result: res, View: p.View(queryInt(r, "width", 0))})
}
