package model

import "strings"

// ExportFormat is a supported file format for exports and import templates.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatExcel ExportFormat = "excel"
)

// ParseExportFormat parses a user supplied format. An empty string selects CSV.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", NewValidationError("Unsupported format " + s + " (supported: csv, excel)")
}

// Extension returns the file extension used for downloads of this format.
func (f ExportFormat) Extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return "csv"
}

// ContentType returns the MIME type of files in this format.
func (f ExportFormat) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ImportResult is the outcome of one import or dry run.
type ImportResult struct {
	Imported  int        `json:"imported"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors"`
	Truncated int        `json:"truncated,omitempty"`
	DryRun    bool       `json:"dry_run"`
	Message   string     `json:"message,omitempty"`
}

// RowError reports why a single input row was rejected.
type RowError struct {
	Row   int            `json:"row"`
	Error string         `json:"error"`
	Data  map[string]any `json:"data,omitempty"`
}

// Download describes a file delivered to the user.
type Download struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Location    string `json:"location,omitempty"`
}
