package transfer

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

const campusID = "507f1f77bcf86cd799439011"

type fakeAPI struct {
	mu sync.Mutex

	downloadPath  string
	downloadQuery url.Values
	downloadResp  *apiclient.Response
	downloadErr   error

	uploads   []*apiclient.Multipart
	uploadEnv string
	uploadErr error
	block     chan struct{}
}

func (f *fakeAPI) Download(ctx context.Context, path string, query url.Values) (*apiclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadPath, f.downloadQuery = path, query
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.downloadResp, nil
}

func (f *fakeAPI) Upload(ctx context.Context, path string, form *apiclient.Multipart) (apiclient.Envelope, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, form)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.uploadErr != nil {
		return apiclient.Envelope{}, f.uploadErr
	}
	return apiclient.DecodeEnvelope([]byte(f.uploadEnv))
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type memSink struct {
	mu    sync.Mutex
	files []model.Download
	body  []byte
}

func (s *memSink) Deliver(_ context.Context, file model.Download, body []byte) (model.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, file)
	s.body = body
	return file, nil
}

func csvResponse(disposition string) *apiclient.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/csv")
	if disposition != "" {
		h.Set("Content-Disposition", disposition)
	}
	return &apiclient.Response{Status: 200, Header: h, Body: []byte("id,name\na,Ada\n")}
}

func testTransferConfig() config.TransferConfig {
	cfg := config.Defaults().Transfer
	cfg.AutoCloseDelay = 20 * time.Millisecond
	return cfg
}

func TestExport_selectedIDs(t *testing.T) {
	api := &fakeAPI{downloadResp: csvResponse(`attachment; filename="students_2026.csv"`)}
	sink := &memSink{}
	e := NewExporter(api, nil, nil)

	res := e.Export(context.Background(), ExportRequest{
		Endpoint: "students",
		Format:   model.FormatCSV,
		IDs:      []string{"a", "b"},
		Filters:  map[string]any{"status": "active"},
	}, sink)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "/students/export/csv", api.downloadPath)
	assert.Equal(t, url.Values{"ids": {"a,b"}}, api.downloadQuery, "ids take precedence over filters")
	require.Len(t, sink.files, 1)
	assert.Equal(t, "students_2026.csv", sink.files[0].Filename)
	assert.Equal(t, "text/csv", sink.files[0].ContentType)
	assert.Equal(t, "id,name\na,Ada\n", string(sink.body))
}

func TestExport_activeFiltersAndFallbackName(t *testing.T) {
	api := &fakeAPI{downloadResp: &apiclient.Response{Status: 200, Header: http.Header{}, Body: []byte("xlsx")}}
	sink := &memSink{}
	e := NewExporter(api, nil, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 7, 14, 5, 9, 0, time.UTC) }

	res := e.Export(context.Background(), ExportRequest{
		Endpoint: "students",
		Format:   model.FormatExcel,
		Filters:  map[string]any{"status": "active", "classId": "", "gender": nil},
	}, sink)

	require.True(t, res.Success)
	assert.Equal(t, "/students/export/excel", api.downloadPath)
	assert.Equal(t, url.Values{"status": {"active"}}, api.downloadQuery)
	assert.Equal(t, "students_20260307_140509.xlsx", sink.files[0].Filename)
	assert.Equal(t, model.FormatExcel.ContentType(), sink.files[0].ContentType)
}

func TestExport_failure(t *testing.T) {
	api := &fakeAPI{downloadErr: model.NewBackendError(500, "")}
	sink := &memSink{}
	res := NewExporter(api, nil, nil).Export(context.Background(), ExportRequest{Endpoint: "students"}, sink)

	assert.False(t, res.Success)
	assert.Equal(t, "Export failed", res.Error)
	assert.Empty(t, sink.files)
}

func TestTemplate(t *testing.T) {
	api := &fakeAPI{downloadResp: &apiclient.Response{Status: 200, Header: http.Header{}, Body: []byte("tpl")}}
	sink := &memSink{}
	res := NewExporter(api, nil, nil).Template(context.Background(), "students", model.FormatCSV, sink)

	require.True(t, res.Success)
	assert.Equal(t, "/students/import/template/csv", api.downloadPath)
	assert.Empty(t, api.downloadQuery)
	assert.Equal(t, "students_template.csv", sink.files[0].Filename)
}

func TestFilenameFrom(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "fallback.csv"},
		{`attachment; filename="report.csv"`, "report.csv"},
		{`attachment; filename=report.xlsx`, "report.xlsx"},
		{`attachment; filename="../../etc/passwd"`, "passwd"},
		{`attachment; filename="..\\evil.csv"`, "evil.csv"},
		{`attachment`, "fallback.csv"},
		{`;;;`, "fallback.csv"},
	}
	for _, tt := range tests {
		if got := FilenameFrom(tt.header, "fallback.csv"); got != tt.want {
			t.Errorf("FilenameFrom(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestDirSink_doesNotClobber(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{Dir: filepath.Join(dir, "downloads")}

	first, err := sink.Deliver(context.Background(), model.Download{Filename: "students.csv"}, []byte("one"))
	require.NoError(t, err)
	second, err := sink.Deliver(context.Background(), model.Download{Filename: "students.csv"}, []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, "students.csv", first.Filename)
	assert.Equal(t, "students (1).csv", second.Filename)
	assert.Equal(t, int64(3), second.Size)

	b, err := os.ReadFile(first.Location)
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
	b, err = os.ReadFile(second.Location)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))
}

func TestCheckFile(t *testing.T) {
	cfg := testTransferConfig()
	cfg.MaxUploadBytes = 10
	im := NewImporter(&fakeAPI{}, cfg, nil, nil, nil)

	tests := []struct {
		name string
		file File
		ok   bool
	}{
		{"csv", File{Name: "a.csv", Data: []byte("x")}, true},
		{"upper xlsx", File{Name: "A.XLSX", Data: []byte("x")}, true},
		{"xls", File{Name: "a.xls", Data: []byte("x")}, true},
		{"pdf", File{Name: "a.pdf", Data: []byte("x")}, false},
		{"no name", File{Data: []byte("x")}, false},
		{"too large", File{Name: "a.csv", Data: make([]byte, 11)}, false},
		{"empty", File{Name: "a.csv"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := im.CheckFile(tt.file)
			if (err == nil) != tt.ok {
				t.Errorf("CheckFile() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestImport_invalidScopeSkipsBackend(t *testing.T) {
	api := &fakeAPI{}
	im := NewImporter(api, testTransferConfig(), nil, nil, nil)

	res := im.Import(context.Background(), ImportRequest{Endpoint: "students", Scope: "nope", File: File{Name: "a.csv", Data: []byte("x")}})
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrValidationError, res.Code)
	assert.Zero(t, api.uploadCount())
}

func TestImport_multipartFieldsAndTruncation(t *testing.T) {
	api := &fakeAPI{uploadEnv: `{"success":true,"data":{"imported":0,"failed":3,"errors":[
		{"row":2,"error":"bad email"},{"row":4,"message":"missing name"},{"row":5,"error":"dup"}]}}`}
	cfg := testTransferConfig()
	cfg.MaxRowErrors = 2
	im := NewImporter(api, cfg, nil, nil, nil)

	res := im.Import(context.Background(), ImportRequest{
		Endpoint: "students",
		Scope:    campusID,
		File:     File{Name: "dir/students.csv", Data: []byte("name\n")},
		DryRun:   false,
	})
	require.True(t, res.Success)
	assert.Empty(t, res.Invalidate, "nothing imported, nothing to refetch")

	form := api.uploads[0]
	assert.Equal(t, campusID, form.Fields["campusId"])
	assert.Equal(t, "false", form.Fields["dryRun"])
	assert.Equal(t, "students.csv", form.FileName)

	ir := res.Data.(model.ImportResult)
	assert.Equal(t, 3, ir.Failed)
	assert.Len(t, ir.Errors, 2)
	assert.Equal(t, 1, ir.Truncated)
	assert.Equal(t, "missing name", ir.Errors[1].Error)
}

func TestImportDialog_dryRunScenario(t *testing.T) {
	api := &fakeAPI{uploadEnv: `{"success":true,"message":"Dry run complete","data":{"imported":4,"failed":1,
		"errors":[{"row":3,"error":"firstName is required","data":{"lastName":"Hopper"}}]}}`}
	successCalls := 0
	d := NewImportDialog(NewImporter(api, testTransferConfig(), nil, nil, nil), NewExporter(api, nil, nil),
		"students", 20*time.Millisecond, func(model.Result) { successCalls++ })

	d.Open(campusID)
	require.NoError(t, d.SelectFile(File{Name: "students.csv", Data: []byte("5 rows")}))
	res := d.Validate(context.Background())
	require.True(t, res.Success)

	assert.Equal(t, "true", api.uploads[0].Fields["dryRun"])
	ir := res.Data.(model.ImportResult)
	assert.Equal(t, 4, ir.Imported)
	assert.Equal(t, 1, ir.Failed)
	require.Len(t, ir.Errors, 1)
	assert.Equal(t, 3, ir.Errors[0].Row)
	assert.True(t, ir.DryRun)

	time.Sleep(50 * time.Millisecond)
	s := d.State()
	assert.True(t, s.Open, "dry run never auto-closes")
	assert.False(t, s.Closing)
	assert.Equal(t, ModeValidate, s.Mode)
	assert.Zero(t, successCalls)

	d.ToggleErrors()
	assert.True(t, d.State().ErrorsExpanded)
}

func TestImportDialog_successfulImportClosesAndNotifies(t *testing.T) {
	api := &fakeAPI{uploadEnv: `{"success":true,"data":{"imported":5,"failed":0,"errors":[]}}`}
	var got model.Result
	d := NewImportDialog(NewImporter(api, testTransferConfig(), nil, nil, nil), NewExporter(api, nil, nil),
		"students", 20*time.Millisecond, func(r model.Result) { got = r })

	d.Open(campusID)
	require.NoError(t, d.SelectFile(File{Name: "students.xlsx", Data: []byte("rows")}))
	res := d.Import(context.Background())
	require.True(t, res.Success)

	assert.True(t, got.Success)
	assert.ElementsMatch(t, []model.Target{model.TargetList, model.TargetKPIs}, got.Invalidate)
	assert.True(t, d.State().Closing)
	require.Eventually(t, func() bool { return !d.State().Open }, time.Second, 5*time.Millisecond)
}

func TestImportDialog_inlineErrors(t *testing.T) {
	api := &fakeAPI{uploadErr: model.NewBackendError(400, "Campus not found")}
	d := NewImportDialog(NewImporter(api, testTransferConfig(), nil, nil, nil), NewExporter(api, nil, nil), "students", time.Second, nil)
	d.Open(campusID)

	res := d.Import(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "Please select a file", d.State().Error)

	assert.Error(t, d.SelectFile(File{Name: "photo.png", Data: []byte("x")}))
	assert.Contains(t, d.State().Error, "Invalid file type")
	d.DismissError()
	assert.Empty(t, d.State().Error)

	require.NoError(t, d.SelectFile(File{Name: "s.csv", Data: []byte("x")}))
	d.Import(context.Background())
	s := d.State()
	assert.Equal(t, "Campus not found", s.Error)
	assert.True(t, s.Open, "failures keep the dialog open")
}

func TestImportDialog_cancelRefusedWhileInFlight(t *testing.T) {
	api := &fakeAPI{uploadEnv: `{"data":{"imported":1}}`, block: make(chan struct{})}
	d := NewImportDialog(NewImporter(api, testTransferConfig(), nil, nil, nil), NewExporter(api, nil, nil), "students", time.Second, nil)
	d.Open(campusID)
	require.NoError(t, d.SelectFile(File{Name: "s.csv", Data: []byte("x")}))

	done := make(chan struct{})
	go func() {
		d.Import(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return d.State().InFlight }, time.Second, time.Millisecond)

	assert.Error(t, d.Cancel())
	second := d.Validate(context.Background())
	assert.Equal(t, model.ErrConflict, second.Code)

	close(api.block)
	<-done
	assert.NoError(t, d.Cancel())
	assert.False(t, d.State().Open)
}

func TestExportDialog(t *testing.T) {
	api := &fakeAPI{downloadErr: model.NewBackendError(502, "Export service down")}
	sink := &memSink{}
	d := NewExportDialog(NewExporter(api, nil, nil), "students", 20*time.Millisecond)

	d.Open([]string{"a"}, nil)
	d.SetFormat(model.FormatExcel)
	res := d.Submit(context.Background(), sink)
	assert.False(t, res.Success)
	s := d.State()
	assert.True(t, s.Open)
	assert.Equal(t, "Export service down", s.Error)
	d.DismissError()
	assert.Empty(t, d.State().Error)

	api.downloadErr = nil
	api.downloadResp = csvResponse("")
	res = d.Submit(context.Background(), sink)
	require.True(t, res.Success)
	assert.Equal(t, "/students/export/excel", api.downloadPath)
	assert.Equal(t, "a", api.downloadQuery.Get("ids"))
	assert.NotNil(t, d.State().Last)
	require.Eventually(t, func() bool { return !d.State().Open }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.FormatExcel, d.State().Format, "format choice survives closing")
}
