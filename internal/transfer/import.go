package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// File is an uploaded file held in memory.
type File struct {
	Name string
	Data []byte
}

// ImportRequest is one import or dry run.
type ImportRequest struct {
	Endpoint string
	Scope    string
	File     File
	DryRun   bool
}

// Importer validates and uploads import files.
type Importer struct {
	api          API
	maxBytes     int64
	extensions   []string
	maxRowErrors int
	validScope   func(string) bool
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewImporter creates an Importer with the configured constraints.
// validScope may be nil to use the default scope check.
func NewImporter(api API, cfg config.TransferConfig, validScope func(string) bool, logger *zap.Logger, metrics *observability.Metrics) *Importer {
	if validScope == nil {
		validScope = model.ValidScope
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := make([]string, 0, len(cfg.AllowedExtensions))
	for _, e := range cfg.AllowedExtensions {
		exts = append(exts, strings.ToLower(e))
	}
	return &Importer{
		api:          api,
		maxBytes:     cfg.MaxUploadBytes,
		extensions:   exts,
		maxRowErrors: cfg.MaxRowErrors,
		validScope:   validScope,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckFile enforces the extension and size constraints.
func (im *Importer) CheckFile(f File) error {
	if f.Name == "" {
		return model.NewValidationError("Please select a file")
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	allowed := false
	for _, e := range im.extensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return model.NewValidationError(fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(im.extensions, ", ")))
	}
	if im.maxBytes > 0 && int64(len(f.Data)) > im.maxBytes {
		return model.Errorf(model.ErrValidationError, "File is too large (max %d MB)", im.maxBytes>>20)
	}
	if len(f.Data) == 0 {
		return model.NewValidationError("The selected file is empty")
	}
	return nil
}

// Import posts the file as multipart form data to /<endpoint>/import with the
// scope id and dry-run flag. The result data is a model.ImportResult. A real
// import that imported rows asks for list and KPI refetches.
func (im *Importer) Import(ctx context.Context, req ImportRequest) model.Result {
	endpoint := strings.Trim(req.Endpoint, "/")
	if !im.validScope(req.Scope) {
		return model.Failed(model.NewValidationError("A valid campus is required to import"), "")
	}
	if err := im.CheckFile(req.File); err != nil {
		return model.Failed(err, "")
	}

	ctx, span := observability.StartSpan(ctx, "transfer.import",
		observability.AttrEndpoint.String(endpoint),
		observability.AttrScope.String(req.Scope),
		observability.AttrDryRun.Bool(req.DryRun),
	)
	var spanErr error
	defer func() { observability.EndSpanWithError(span, spanErr) }()

	env, err := im.api.Upload(ctx, "/"+endpoint+"/import", &apiclient.Multipart{
		Fields: map[string]string{
			"campusId": req.Scope,
			"dryRun":   strconv.FormatBool(req.DryRun),
		},
		FileName: filepath.Base(req.File.Name),
		File:     req.File.Data,
	})
	logger := observability.RequestLogger(ctx, im.logger).With(
		zap.String("endpoint", endpoint),
		zap.Bool("dry_run", req.DryRun),
	)
	if err != nil {
		spanErr = err
		im.metrics.RecordImport(endpoint, req.DryRun, false, 0, 0)
		if !apiclient.IsCancelled(err) {
			logger.Warn("import failed", zap.Error(err))
		}
		return model.Failed(err, "Import failed")
	}

	result, err := decodeImportResult(env)
	if err != nil {
		spanErr = err
		im.metrics.RecordImport(endpoint, req.DryRun, false, 0, 0)
		logger.Warn("import response not understood", zap.Error(err))
		return model.Failed(err, "Import failed")
	}
	result.DryRun = req.DryRun
	im.truncate(&result)

	im.metrics.RecordImport(endpoint, req.DryRun, true, result.Imported, result.Failed)
	logger.Info("import finished",
		zap.Int("imported", result.Imported),
		zap.Int("failed", result.Failed),
	)

	msg := env.Message
	if msg == "" {
		if req.DryRun {
			msg = fmt.Sprintf("Validation completed: %d valid, %d invalid", result.Imported, result.Failed)
		} else {
			msg = fmt.Sprintf("Import completed: %d imported, %d failed", result.Imported, result.Failed)
		}
	}
	result.Message = msg

	var invalidate []model.Target
	if !req.DryRun && result.Imported > 0 {
		invalidate = []model.Target{model.TargetList, model.TargetKPIs}
	}
	return model.Succeeded(msg, result, invalidate...)
}

func (im *Importer) truncate(r *model.ImportResult) {
	if im.maxRowErrors > 0 && len(r.Errors) > im.maxRowErrors {
		r.Truncated = len(r.Errors) - im.maxRowErrors
		r.Errors = r.Errors[:im.maxRowErrors]
	}
	if r.Errors == nil {
		r.Errors = []model.RowError{}
	}
}

// decodeImportResult reads {imported, failed, errors[{row, error|message, data}]}.
func decodeImportResult(env apiclient.Envelope) (model.ImportResult, error) {
	var raw struct {
		Imported int  `json:"imported"`
		Valid    *int `json:"valid"`
		Failed   int  `json:"failed"`
		Errors   []struct {
			Row     int            `json:"row"`
			Error   string         `json:"error"`
			Message string         `json:"message"`
			Data    map[string]any `json:"data"`
		} `json:"errors"`
	}
	if err := env.DecodeData(&raw); err != nil {
		return model.ImportResult{}, err
	}
	r := model.ImportResult{Imported: raw.Imported, Failed: raw.Failed}
	if raw.Imported == 0 && raw.Valid != nil {
		r.Imported = *raw.Valid
	}
	for _, e := range raw.Errors {
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		r.Errors = append(r.Errors, model.RowError{Row: e.Row, Error: msg, Data: e.Data})
	}
	if r.Failed == 0 && len(r.Errors) > 0 {
		r.Failed = len(r.Errors)
	}
	return r, nil
}
