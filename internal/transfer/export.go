// Package transfer implements file based bulk extraction (export), bulk
// ingestion (import with dry run) and template downloads, plus the dialog
// state that drives them.
package transfer

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// API is the subset of the school API client used for file transfer.
type API interface {
	Download(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
	Upload(ctx context.Context, path string, form *apiclient.Multipart) (apiclient.Envelope, error)
}

// ExportRequest selects what to export. IDs take precedence over Filters.
type ExportRequest struct {
	Endpoint string
	Format   model.ExportFormat
	IDs      []string
	Filters  map[string]any
}

// Exporter downloads exports and import templates.
type Exporter struct {
	api     API
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(api API, logger *zap.Logger, metrics *observability.Metrics) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{api: api, logger: logger, metrics: metrics, now: time.Now}
}

// Export requests GET /<endpoint>/export/<format> with either ids=<a,b,...>
// or the active filters, and hands the file to sink. The result data is the
// delivered model.Download.
func (e *Exporter) Export(ctx context.Context, req ExportRequest, sink Sink) model.Result {
	endpoint := strings.Trim(req.Endpoint, "/")
	format := req.Format
	if format == "" {
		format = model.FormatCSV
	}

	ctx, span := observability.StartSpan(ctx, "transfer.export",
		observability.AttrEndpoint.String(endpoint),
		observability.AttrFormat.String(string(format)),
		observability.AttrSelection.Int(len(req.IDs)),
	)
	var spanErr error
	defer func() { observability.EndSpanWithError(span, spanErr) }()

	query := url.Values{}
	if len(req.IDs) > 0 {
		query.Set("ids", strings.Join(req.IDs, ","))
	} else {
		for k, v := range (model.Query{Filters: req.Filters}).ActiveFilters() {
			query.Set(k, v)
		}
	}

	path := fmt.Sprintf("/%s/export/%s", endpoint, format)
	resp, err := e.api.Download(ctx, path, query)
	if err != nil {
		spanErr = err
		e.metrics.RecordExport(endpoint, string(format), false)
		e.logFailure(ctx, "export failed", err)
		return model.Failed(err, "Export failed")
	}

	file := model.Download{
		Filename:    FilenameFrom(resp.Header.Get("Content-Disposition"), e.fallbackName(endpoint, format)),
		ContentType: responseType(resp, format),
		Size:        int64(len(resp.Body)),
	}
	delivered, err := sink.Deliver(ctx, file, resp.Body)
	if err != nil {
		spanErr = err
		e.metrics.RecordExport(endpoint, string(format), false)
		e.logFailure(ctx, "delivering export failed", err)
		return model.Failed(err, "Export failed")
	}

	e.metrics.RecordExport(endpoint, string(format), true)
	observability.RequestLogger(ctx, e.logger).Info("export delivered",
		zap.String("endpoint", endpoint),
		zap.String("filename", delivered.Filename),
		zap.Int64("size", delivered.Size),
	)
	return model.Succeeded("Export completed", delivered)
}

// Template downloads the import template for endpoint in format.
func (e *Exporter) Template(ctx context.Context, endpoint string, format model.ExportFormat, sink Sink) model.Result {
	endpoint = strings.Trim(endpoint, "/")
	if format == "" {
		format = model.FormatCSV
	}
	path := fmt.Sprintf("/%s/import/template/%s", endpoint, format)
	resp, err := e.api.Download(ctx, path, nil)
	if err != nil {
		e.logFailure(ctx, "template download failed", err)
		return model.Failed(err, "Failed to download template")
	}

	file := model.Download{
		Filename:    FilenameFrom(resp.Header.Get("Content-Disposition"), fmt.Sprintf("%s_template.%s", endpoint, format.Extension())),
		ContentType: responseType(resp, format),
		Size:        int64(len(resp.Body)),
	}
	delivered, err := sink.Deliver(ctx, file, resp.Body)
	if err != nil {
		e.logFailure(ctx, "delivering template failed", err)
		return model.Failed(err, "Failed to download template")
	}
	return model.Succeeded("Template downloaded", delivered)
}

func (e *Exporter) fallbackName(endpoint string, format model.ExportFormat) string {
	return fmt.Sprintf("%s_%s.%s", endpoint, e.now().Format("20060102_150405"), format.Extension())
}

func (e *Exporter) logFailure(ctx context.Context, msg string, err error) {
	logger := observability.RequestLogger(ctx, e.logger)
	if apiclient.IsCancelled(err) {
		logger.Debug(msg, zap.Error(err))
		return
	}
	logger.Warn(msg, zap.Error(err))
}

// FilenameFrom extracts the filename parameter of a Content-Disposition
// header, reduced to its base name. fallback is used when absent.
func FilenameFrom(disposition, fallback string) string {
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}
	name := filepath.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}

func responseType(resp *apiclient.Response, format model.ExportFormat) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return format.ContentType()
}
