package page

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/entity"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

const campus = "507f1f77bcf86cd799439011"

// fakeSchool is an in-memory school API for one endpoint.
type fakeSchool struct {
	mu       sync.Mutex
	calls    map[string]int
	queries  []url.Values
	students []model.Entity
	nextID   int
	failPost string
	uploads  []*apiclient.Multipart
}

func newFakeSchool(ids ...string) *fakeSchool {
	f := &fakeSchool{calls: make(map[string]int)}
	for _, id := range ids {
		f.students = append(f.students, model.Entity{"id": id, "firstName": strings.ToUpper(id), "status": "active"})
	}
	return f
}

func (f *fakeSchool) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeSchool) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

func reply(v map[string]any) (apiclient.Envelope, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return apiclient.Envelope{}, err
	}
	return apiclient.DecodeEnvelope(body)
}

func (f *fakeSchool) GetJSON(_ context.Context, path string, query url.Values) (apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GET "+path]++
	if strings.HasSuffix(path, "/dashboard") {
		return reply(map[string]any{"success": true, "data": map[string]any{
			"students": map[string]any{"total": len(f.students), "trend": 2.5},
		}})
	}
	f.queries = append(f.queries, query)
	var out []model.Entity
	for _, s := range f.students {
		if st := query.Get("status"); st != "" && s["status"] != st {
			continue
		}
		if q := query.Get("search"); q != "" && !strings.Contains(strings.ToLower(s["firstName"].(string)), strings.ToLower(q)) {
			continue
		}
		out = append(out, s)
	}
	return reply(map[string]any{"success": true, "data": out, "pagination": map[string]any{"total": len(out)}})
}

func (f *fakeSchool) PostJSON(_ context.Context, path string, body any) (apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["POST "+path]++
	if f.failPost != "" {
		return apiclient.Envelope{}, model.NewBackendError(http.StatusBadRequest, f.failPost)
	}
	payload := body.(map[string]any)
	switch path {
	case "/students":
		f.nextID++
		e := model.Entity{"id": fmt.Sprintf("new%d", f.nextID), "status": "active"}
		for k, v := range payload {
			e[k] = v
		}
		f.students = append(f.students, e)
		return reply(map[string]any{"success": true, "data": e})
	case "/students/bulk/archive":
		ids := payload["entityIds"].([]string)
		f.remove(ids...)
		return reply(map[string]any{"success": true, "message": fmt.Sprintf("%d archived", len(ids))})
	default:
		return reply(map[string]any{"success": true})
	}
}

func (f *fakeSchool) PutJSON(_ context.Context, path string, _ any) (apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PUT "+path]++
	return reply(map[string]any{"success": true})
}

func (f *fakeSchool) Delete(_ context.Context, path string) (apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DELETE "+path]++
	f.remove(strings.TrimPrefix(path, "/students/"))
	return reply(map[string]any{"success": true})
}

func (f *fakeSchool) remove(ids ...string) {
	kept := f.students[:0]
	for _, s := range f.students {
		drop := false
		for _, id := range ids {
			if s.ID() == id {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, s)
		}
	}
	f.students = kept
}

func (f *fakeSchool) Download(_ context.Context, path string, query url.Values) (*apiclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GET "+path]++
	f.queries = append(f.queries, query)
	return &apiclient.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Disposition": []string{`attachment; filename="students.csv"`}},
		Body:   []byte("id\na\n"),
	}, nil
}

func (f *fakeSchool) Upload(_ context.Context, path string, form *apiclient.Multipart) (apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["POST "+path]++
	f.uploads = append(f.uploads, form)
	return reply(map[string]any{"success": true, "data": map[string]any{"imported": 2, "failed": 0, "errors": []any{}}})
}

type memSink struct {
	mu    sync.Mutex
	files []model.Download
}

func (s *memSink) Deliver(_ context.Context, file model.Download, body []byte) (model.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file.Size = int64(len(body))
	s.files = append(s.files, file)
	return file, nil
}

func studentsDef() model.PageDefinition {
	return model.PageDefinition{
		ID:                 "students",
		Title:              "Students",
		Entity:             "Student",
		EntityPlural:       "students",
		Route:              "/students",
		Endpoint:           "students",
		ScopeKey:           "campus",
		ScopeRoot:          "campus",
		RelatedLabel:       "class",
		RowsPerPageOptions: []int{5, 10, 25},
		Columns:            []model.ColumnDefinition{{Field: "firstName", Label: "First name"}},
		Filters: []model.FilterDefinition{
			{Key: "status", Label: "Status", Type: "select", Options: []model.StaticOption{
				{Label: "Active", Value: "active"},
				{Label: "Suspended", Value: "suspended"},
			}},
		},
		KPIs: []model.MetricDefinition{
			{Key: "total", Label: "Students", ValuePath: "students.total", TrendPath: "students.trend"},
		},
		BulkActions: []string{"reclassify", "email", "archive", "export"},
	}
}

func testDeps(api API) Deps {
	cfg := config.Defaults()
	cfg.Entity.SearchDebounce = 40 * time.Millisecond
	cfg.Transfer.AutoCloseDelay = 10 * time.Millisecond
	return Deps{
		API:           api,
		Entity:        cfg.Entity,
		Transfer:      cfg.Transfer,
		Notifications: cfg.Notifications,
	}
}

func openPage(t *testing.T, api *fakeSchool, def model.PageDefinition) *Page {
	t.Helper()
	p, err := New(def, testDeps(api))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	p.Open(context.Background(), campus)
	return p
}

func TestPage_OpenPopulated(t *testing.T) {
	api := newFakeSchool("a", "b", "c")
	p := openPage(t, api, studentsDef())

	v := p.View(1280)
	assert.Equal(t, StatusPopulated, v.Status)
	assert.Equal(t, LayoutTable, v.Layout)
	assert.Equal(t, 3, v.Total)
	assert.Len(t, v.Entities, 3)
	assert.Equal(t, campus, v.Scope)
	assert.Equal(t, 10, v.Query.RowsPerPage)
	require.Len(t, v.KPIs, 1)
	assert.Equal(t, "3", v.KPIs[0].Value)
	require.NotNil(t, v.KPIs[0].Trend)
	assert.Equal(t, "up", v.KPIs[0].Trend.Direction)
	assert.Equal(t, "students", v.Page.ID)
	assert.Len(t, v.BulkActions, 4)
	assert.False(t, v.BulkActions[0].Enabled, "no selection")

	assert.Equal(t, "1", api.lastQuery().Get("page"))
	assert.Equal(t, "10", api.lastQuery().Get("limit"))
	assert.Equal(t, campus, api.lastQuery().Get("campus"))

	assert.Equal(t, LayoutCards, p.View(600).Layout)
}

func TestPage_InvalidScopeStaysEmpty(t *testing.T) {
	api := newFakeSchool("a")
	p, err := New(studentsDef(), testDeps(api))
	require.NoError(t, err)
	defer p.Close()

	p.Open(context.Background(), "not-a-campus")

	v := p.View(0)
	assert.Equal(t, StatusEmpty, v.Status)
	assert.Empty(t, v.Entities)
	assert.Empty(t, v.KPIs)
	assert.Zero(t, api.count("GET /students"))
	assert.Zero(t, api.count("GET /campus/not-a-campus/dashboard"))
}

func TestPage_BulkArchiveNeedsConfirmation(t *testing.T) {
	api := newFakeSchool("a", "b", "c")
	p := openPage(t, api, studentsDef())
	p.Toggle("a")
	p.Toggle("b")

	res := p.ConfirmBulkArchive(context.Background())
	assert.False(t, res.Success)
	assert.Zero(t, api.count("POST /students/bulk/archive"), "no call before confirmation")

	res = p.RequestBulkArchive()
	require.True(t, res.Success)
	assert.Equal(t, "Archive 2 students?", res.Message)
	assert.True(t, p.View(0).Modals[ModalArchive])

	lists := api.count("GET /students")
	kpis := api.count("GET /campus/" + campus + "/dashboard")

	res = p.ConfirmBulkArchive(context.Background())
	require.True(t, res.Success)
	assert.Equal(t, "2 archived", res.Message)
	assert.Equal(t, 1, api.count("POST /students/bulk/archive"))
	assert.Equal(t, lists+1, api.count("GET /students"), "list refetched exactly once")
	assert.Equal(t, kpis+1, api.count("GET /campus/"+campus+"/dashboard"), "kpis refetched exactly once")

	v := p.View(0)
	assert.Empty(t, v.Selection.IDs)
	assert.False(t, v.Modals[ModalArchive])
	assert.Equal(t, 1, v.Total)
	require.Len(t, v.Notifications, 1)
	assert.Equal(t, KindSuccess, v.Notifications[0].Kind)
	assert.Equal(t, "2 archived", v.Notifications[0].Message)
}

func TestPage_RequestBulkArchiveWithoutSelection(t *testing.T) {
	p := openPage(t, newFakeSchool("a"), studentsDef())
	res := p.RequestBulkArchive()
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrValidationError, res.Code)
	assert.False(t, p.View(0).Modals[ModalArchive])
}

func TestPage_BulkActionNotEnabled(t *testing.T) {
	def := studentsDef()
	def.BulkActions = []string{"export"}
	api := newFakeSchool("a")
	p := openPage(t, api, def)
	p.SelectAll(true)

	res := p.BulkEmail(context.Background(), "s", "m")
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrBadRequest, res.Code)
	assert.Zero(t, api.count("POST /students/bulk/email"))
}

func TestPage_BulkFailureNotifiesAndKeepsSelection(t *testing.T) {
	api := newFakeSchool("a", "b")
	p := openPage(t, api, studentsDef())
	p.SelectAll(true)
	api.failPost = "Target class is full"

	res := p.BulkReclassify(context.Background(), "class-1")
	assert.False(t, res.Success)
	v := p.View(0)
	assert.Equal(t, []string{"a", "b"}, v.Selection.IDs)
	require.Len(t, v.Notifications, 1)
	assert.Equal(t, KindError, v.Notifications[0].Kind)
	assert.Equal(t, "Target class is full", v.Notifications[0].Message)
}

func TestPage_FiltersChipsAndReset(t *testing.T) {
	api := newFakeSchool("a", "b")
	p := openPage(t, api, studentsDef())
	require.NoError(t, p.SetPage(1))
	require.Eventually(t, func() bool {
		return api.lastQuery().Get("page") == "2" && p.View(0).Status != StatusLoading
	}, time.Second, 5*time.Millisecond)

	p.SetFilter("status", "suspended")
	v := p.View(0)
	assert.Equal(t, 0, v.Query.Page, "a filter change goes back to the first page")
	assert.Equal(t, 1, v.Filters.ActiveCount)
	require.Len(t, v.Filters.Chips, 1)
	assert.Equal(t, "Suspended", v.Filters.Chips[0].Value)

	require.Eventually(t, func() bool {
		return api.lastQuery().Get("status") == "suspended" && p.View(0).Status == StatusEmpty
	}, time.Second, 5*time.Millisecond)

	p.RemoveFilter("status")
	assert.Zero(t, p.View(0).Filters.ActiveCount)

	p.SetFilter("status", "active")
	p.SetSearch("b")
	p.ResetFilters()
	v = p.View(0)
	assert.Zero(t, v.Filters.ActiveCount)
	assert.Empty(t, v.Filters.Search)

	require.Eventually(t, func() bool {
		v := p.View(0)
		return v.Status == StatusPopulated && v.Total == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPage_SearchIsDebounced(t *testing.T) {
	api := newFakeSchool("anna", "bob", "annie")
	p := openPage(t, api, studentsDef())
	before := api.count("GET /students")

	p.SetSearch("a")
	p.SetSearch("an")
	p.SetSearch("ann")
	assert.Equal(t, StatusLoading, p.View(0).Status)

	require.Eventually(t, func() bool { return p.View(0).Status == StatusPopulated }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before+1, api.count("GET /students"), "only the last keystroke reaches the backend")
	assert.Equal(t, "ann", api.lastQuery().Get("search"))
	assert.Equal(t, 2, p.View(0).Total)
}

func TestPage_SelectionResetsWhenListChanges(t *testing.T) {
	api := newFakeSchool("a", "b")
	p := openPage(t, api, studentsDef())
	p.Toggle("a")
	assert.Equal(t, []string{"a"}, p.View(0).Selection.IDs)

	api.mu.Lock()
	api.students[0]["status"] = "suspended"
	api.mu.Unlock()
	p.SetFilter("status", "active")

	require.Eventually(t, func() bool {
		v := p.View(0)
		return v.Status == StatusPopulated && v.Total == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.View(0).Selection.IDs)
}

func TestPage_CreateUpdateArchive(t *testing.T) {
	api := newFakeSchool("a")
	p := openPage(t, api, studentsDef())
	ctx := context.Background()
	kpiPath := "GET /campus/" + campus + "/dashboard"

	require.NoError(t, p.SetModal(ModalForm, true, ""))
	kpis := api.count(kpiPath)
	res := p.Create(ctx, map[string]any{"firstName": "Zoe"})
	require.True(t, res.Success)
	assert.Equal(t, "Student created successfully", res.Message)
	assert.Equal(t, kpis+1, api.count(kpiPath))
	v := p.View(0)
	assert.False(t, v.Modals[ModalForm])
	assert.Equal(t, 2, v.Total, "created entity is in the refetched list")

	require.NoError(t, p.SetModal(ModalForm, true, "a"))
	assert.Equal(t, "a", p.View(0).Focus)
	kpis = api.count(kpiPath)
	res = p.Update(ctx, "a", map[string]any{"firstName": "Ann"})
	require.True(t, res.Success)
	assert.Equal(t, kpis, api.count(kpiPath), "update does not refetch kpis")
	assert.Empty(t, p.View(0).Focus)

	res = p.Archive(ctx, "a")
	require.True(t, res.Success)
	assert.Equal(t, 1, p.View(0).Total, "archived entity is gone from the refetched list")
}

func TestPage_SetModal(t *testing.T) {
	p := openPage(t, newFakeSchool("a"), studentsDef())

	var verr *model.ErrorEnvelope
	err := p.SetModal("wizard", true, "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.ErrValidationError, verr.Code)

	assert.Error(t, p.SetModal(ModalDetail, true, ""))
	require.NoError(t, p.SetModal(ModalDetail, true, "a"))
	require.NoError(t, p.SetModal(ModalEmail, true, ""))

	v := p.View(0)
	assert.True(t, v.Modals[ModalDetail])
	assert.True(t, v.Modals[ModalEmail], "modals are independent")
	assert.Equal(t, "a", v.Focus)

	require.NoError(t, p.SetModal(ModalImport, true, ""))
	assert.True(t, p.View(0).Import.Open)
	assert.Equal(t, campus, p.View(0).Import.Scope)
	require.NoError(t, p.SetModal(ModalImport, false, ""))
	assert.False(t, p.View(0).Import.Open)
}

func TestPage_ExportUsesSelectionOrFilters(t *testing.T) {
	api := newFakeSchool("a", "b")
	p := openPage(t, api, studentsDef())
	sink := &memSink{}

	p.SetFilter("status", "active")
	res := p.Export(context.Background(), model.FormatCSV, sink)
	require.True(t, res.Success)
	assert.Equal(t, "active", api.lastQuery().Get("status"))
	assert.Equal(t, 1, api.count("GET /students/export/csv"))

	require.Eventually(t, func() bool { return p.View(0).Status == StatusPopulated }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !p.View(0).Export.Open }, time.Second, 5*time.Millisecond)

	p.Toggle("b")
	res = p.BulkExport(context.Background(), model.FormatExcel, sink)
	require.True(t, res.Success)
	assert.Equal(t, "b", api.lastQuery().Get("ids"))
	assert.Equal(t, []string{"b"}, p.View(0).Selection.IDs, "export keeps the selection")
	assert.Len(t, sink.files, 2)
}

func TestPage_ImportRefetchesAndCloses(t *testing.T) {
	api := newFakeSchool("a")
	p := openPage(t, api, studentsDef())
	kpiPath := "GET /campus/" + campus + "/dashboard"
	kpis := api.count(kpiPath)

	res := p.Import(context.Background(), transfer.File{Name: "students.csv", Data: []byte("firstName\nA\nB\n")}, true)
	require.True(t, res.Success)
	assert.Equal(t, kpis, api.count(kpiPath), "a dry run changes nothing")
	assert.True(t, p.View(0).Import.Open)

	res = p.Import(context.Background(), transfer.File{Name: "students.csv", Data: []byte("firstName\nA\nB\n")}, false)
	require.True(t, res.Success)
	assert.Equal(t, kpis+1, api.count(kpiPath))
	assert.False(t, p.View(0).Modals[ModalImport])
	require.Eventually(t, func() bool { return !p.View(0).Import.Open }, time.Second, 5*time.Millisecond)

	res = p.Import(context.Background(), transfer.File{Name: "students.pdf", Data: []byte("x")}, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid file type")
}

func TestPage_ImportFollowsScopeChange(t *testing.T) {
	const otherCampus = "507f1f77bcf86cd799439012"
	api := newFakeSchool("a")
	p := openPage(t, api, studentsDef())

	require.NoError(t, p.SetModal(ModalImport, true, ""))
	assert.Equal(t, campus, p.View(0).Import.Scope)

	p.SetScope(context.Background(), otherCampus)
	assert.Equal(t, otherCampus, p.View(0).Import.Scope)

	res := p.Import(context.Background(), transfer.File{Name: "students.csv", Data: []byte("firstName\nA\n")}, false)
	require.True(t, res.Success)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.uploads, 1)
	assert.Equal(t, otherCampus, api.uploads[0].Fields["campusId"])
}

func TestPage_StaleListSnapshotIgnored(t *testing.T) {
	api := newFakeSchool("a", "b", "c")
	p := openPage(t, api, studentsDef())

	latest := p.entities.Snapshot()
	p.onListChange(entity.State{Entities: []model.Entity{{"id": "c"}}, Seq: 1000})
	p.onListChange(entity.State{Entities: latest.Entities, Seq: 999})

	p.SelectAll(true)
	assert.Equal(t, []string{"c"}, p.bulk.Selected(), "selection must stay within the newest loaded page")
}

func TestPage_Template(t *testing.T) {
	api := newFakeSchool()
	p := openPage(t, api, studentsDef())
	sink := &memSink{}
	res := p.Template(context.Background(), model.FormatExcel, sink)
	require.True(t, res.Success)
	assert.Equal(t, 1, api.count("GET /students/import/template/excel"))
}

func TestPage_SetPageAndRows(t *testing.T) {
	p := openPage(t, newFakeSchool("a"), studentsDef())
	assert.Error(t, p.SetPage(-1))
	assert.Error(t, p.SetRowsPerPage(7))
	require.NoError(t, p.SetPage(2))
	require.NoError(t, p.SetRowsPerPage(25))
	v := p.View(0)
	assert.Equal(t, 0, v.Query.Page)
	assert.Equal(t, 25, v.Query.RowsPerPage)
}

func TestPage_CloseIsIdempotent(t *testing.T) {
	p, err := New(studentsDef(), testDeps(newFakeSchool()))
	require.NoError(t, err)
	p.Close()
	p.Close()
}

func TestRegistry(t *testing.T) {
	defs := definition.NewRegistry([]model.DefinitionFile{{Version: "1", Pages: []model.PageDefinition{studentsDef()}}})
	api := newFakeSchool("a")
	r := NewRegistry(defs, testDeps(api))
	defer r.CloseAll()
	ctx := context.Background()

	_, err := r.Get(ctx, "missing", campus)
	var verr *model.ErrorEnvelope
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.ErrNotFound, verr.Code)

	_, err = r.Lookup("students")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.ErrBadRequest, verr.Code)

	p, err := r.Get(ctx, "students", campus)
	require.NoError(t, err)
	assert.Equal(t, campus, p.Scope())
	assert.Equal(t, 1, api.count("GET /students"))

	again, err := r.Get(ctx, "students", "")
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Equal(t, 1, api.count("GET /students"), "an open page is reused")

	other := "507f191e810c19729de860ea"
	_, err = r.Get(ctx, "students", other)
	require.NoError(t, err)
	assert.Equal(t, other, p.Scope())
	require.Eventually(t, func() bool { return api.lastQuery().Get("campus") == other }, time.Second, 5*time.Millisecond)

	looked, err := r.Lookup("students")
	require.NoError(t, err)
	assert.Same(t, p, looked)

	assert.Equal(t, 1, r.Open())
	r.CloseAll()
	assert.Zero(t, r.Open())
}
