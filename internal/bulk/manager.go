// Package bulk implements the selection set over the loaded entities and the
// multi-entity operations run against it.
package bulk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// API is the subset of the school API client used by bulk actions.
type API interface {
	PostJSON(ctx context.Context, path string, body any) (apiclient.Envelope, error)
}

// Exporter runs exports. Bulk export delegates to it.
type Exporter interface {
	Export(ctx context.Context, req transfer.ExportRequest, sink transfer.Sink) model.Result
}

// Options configures a Manager.
type Options struct {
	Endpoint     string
	EntityPlural string
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Manager owns the selection of one page and serialises bulk actions: only
// one runs at a time.
type Manager struct {
	api      API
	exporter Exporter
	endpoint string
	plural   string
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu         sync.Mutex
	loaded     []string
	selected   map[string]struct{}
	processing bool
}

// NewManager creates a Manager with an empty selection.
func NewManager(api API, exporter Exporter, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	endpoint := strings.Trim(opts.Endpoint, "/")
	if opts.EntityPlural == "" {
		opts.EntityPlural = endpoint
	}
	return &Manager{
		api:      api,
		exporter: exporter,
		endpoint: endpoint,
		plural:   opts.EntityPlural,
		logger:   opts.Logger.With(zap.String("endpoint", endpoint)),
		metrics:  opts.Metrics,
		selected: make(map[string]struct{}),
	}
}

// Reset binds the selection to a freshly loaded page and clears it.
func (m *Manager) Reset(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append([]string(nil), ids...)
	m.selected = make(map[string]struct{})
}

// SelectAll selects every loaded id when checked, else none.
func (m *Manager) SelectAll(checked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = make(map[string]struct{}, len(m.loaded))
	if checked {
		for _, id := range m.loaded {
			m.selected[id] = struct{}{}
		}
	}
}

// Toggle adds id when absent and removes it when present. Ids that are not
// on the loaded page are ignored.
func (m *Manager) Toggle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.selected[id]; ok {
		delete(m.selected, id)
		return
	}
	for _, l := range m.loaded {
		if l == id {
			m.selected[id] = struct{}{}
			return
		}
	}
}

// IsSelected reports whether id is selected.
func (m *Manager) IsSelected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.selected[id]
	return ok
}

// Selected returns the selected ids in page order.
func (m *Manager) Selected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedLocked()
}

func (m *Manager) selectedLocked() []string {
	out := make([]string, 0, len(m.selected))
	for _, id := range m.loaded {
		if _, ok := m.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// AllSelected reports whether every loaded id is selected.
func (m *Manager) AllSelected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded) > 0 && len(m.selected) == len(m.loaded)
}

// Clear empties the selection.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.selected = make(map[string]struct{})
	m.mu.Unlock()
}

// Processing reports whether a bulk action is in flight.
func (m *Manager) Processing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// Reclassify moves the selection to another class via
// POST /<endpoint>/bulk/change-class {entityIds, newRelatedId}.
func (m *Manager) Reclassify(ctx context.Context, newRelatedID string) model.Result {
	return m.run(ctx, model.BulkReclassify, true,
		func(ids []string) error {
			if strings.TrimSpace(newRelatedID) == "" {
				return model.NewValidationError("Please select a target class")
			}
			return nil
		},
		func(ctx context.Context, ids []string) model.Result {
			return m.post(ctx, "change-class",
				map[string]any{"entityIds": ids, "newRelatedId": newRelatedID},
				fmt.Sprintf("%d %s reassigned", len(ids), m.plural),
				"Bulk reassignment failed",
				model.TargetList, model.TargetKPIs)
		})
}

// Email sends one message to the selection via
// POST /<endpoint>/bulk/email {entityIds, subject, message}.
func (m *Manager) Email(ctx context.Context, subject, message string) model.Result {
	return m.run(ctx, model.BulkEmail, true,
		func(ids []string) error {
			if strings.TrimSpace(subject) == "" || strings.TrimSpace(message) == "" {
				return model.NewValidationError("Subject and message are required")
			}
			return nil
		},
		func(ctx context.Context, ids []string) model.Result {
			return m.post(ctx, "email",
				map[string]any{"entityIds": ids, "subject": subject, "message": message},
				fmt.Sprintf("Email sent to %d %s", len(ids), m.plural),
				"Failed to send email")
		})
}

// Archive soft-deletes the selection via POST /<endpoint>/bulk/archive
// {entityIds}. Callers confirm with the user first.
func (m *Manager) Archive(ctx context.Context) model.Result {
	return m.run(ctx, model.BulkArchive, true, nil,
		func(ctx context.Context, ids []string) model.Result {
			return m.post(ctx, "archive",
				map[string]any{"entityIds": ids},
				fmt.Sprintf("%d %s archived", len(ids), m.plural),
				"Bulk archive failed",
				model.TargetList, model.TargetKPIs)
		})
}

// Export downloads exactly the selected ids in format. The selection is kept.
func (m *Manager) Export(ctx context.Context, format model.ExportFormat, sink transfer.Sink) model.Result {
	return m.run(ctx, model.BulkExport, false, nil,
		func(ctx context.Context, ids []string) model.Result {
			return m.exporter.Export(ctx, transfer.ExportRequest{
				Endpoint: m.endpoint,
				Format:   format,
				IDs:      ids,
			}, sink)
		})
}

// run applies the shared contract of every bulk action: one at a time, fail
// fast on an empty selection or invalid input, clear the selection after a
// successful mutating action.
func (m *Manager) run(ctx context.Context, action string, clearOnSuccess bool, validate func([]string) error, call func(context.Context, []string) model.Result) model.Result {
	m.mu.Lock()
	if m.processing {
		m.mu.Unlock()
		return model.Failed(model.NewConflictError("A bulk action is already in progress"), "")
	}
	ids := m.selectedLocked()
	if len(ids) == 0 {
		m.mu.Unlock()
		return model.Failed(model.NewValidationError("Please select at least one item"), "")
	}
	if validate != nil {
		if err := validate(ids); err != nil {
			m.mu.Unlock()
			return model.Failed(err, "")
		}
	}
	m.processing = true
	m.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "bulk."+action,
		observability.AttrEndpoint.String(m.endpoint),
		observability.AttrBulkAction.String(action),
		observability.AttrSelection.Int(len(ids)),
	)
	start := time.Now()
	res := call(ctx, ids)
	if !res.Success {
		observability.EndSpanWithError(span, &model.ErrorEnvelope{Code: res.Code, Message: res.Error})
	} else {
		observability.EndSpanWithError(span, nil)
	}
	m.metrics.RecordBulkAction(m.endpoint, action, res.Success, time.Since(start))

	m.mu.Lock()
	m.processing = false
	if res.Success && clearOnSuccess {
		m.selected = make(map[string]struct{})
	}
	m.mu.Unlock()

	logger := observability.RequestLogger(ctx, m.logger)
	if res.Success {
		logger.Info("bulk action completed", zap.String("action", action), zap.Int("count", len(ids)))
	} else if ctx.Err() == nil {
		logger.Warn("bulk action failed", zap.String("action", action), zap.String("error", res.Error))
	}
	return res
}

func (m *Manager) post(ctx context.Context, suffix string, body map[string]any, okMsg, failMsg string, invalidate ...model.Target) model.Result {
	env, err := m.api.PostJSON(ctx, "/"+m.endpoint+"/bulk/"+suffix, body)
	if err != nil {
		return model.Failed(err, failMsg)
	}
	msg := env.Message
	if msg == "" {
		msg = okMsg
	}
	return model.Succeeded(msg, nil, invalidate...)
}
