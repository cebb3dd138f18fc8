package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

type post struct {
	path string
	body map[string]any
}

type fakeAPI struct {
	mu    sync.Mutex
	posts []post
	reply string
	err   error
	block chan struct{}
}

func (f *fakeAPI) PostJSON(ctx context.Context, path string, body any) (apiclient.Envelope, error) {
	f.mu.Lock()
	f.posts = append(f.posts, post{path: path, body: body.(map[string]any)})
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return apiclient.Envelope{}, f.err
	}
	return apiclient.DecodeEnvelope([]byte(f.reply))
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeExporter struct {
	reqs []transfer.ExportRequest
}

func (e *fakeExporter) Export(_ context.Context, req transfer.ExportRequest, _ transfer.Sink) model.Result {
	e.reqs = append(e.reqs, req)
	return model.Succeeded("Export completed", model.Download{Filename: "students.csv"})
}

func newTestManager(api *fakeAPI, exp *fakeExporter) *Manager {
	m := NewManager(api, exp, Options{Endpoint: "students"})
	m.Reset([]string{"a", "b", "c"})
	return m
}

func TestSelection(t *testing.T) {
	m := newTestManager(&fakeAPI{}, &fakeExporter{})

	m.SelectAll(true)
	assert.Equal(t, []string{"a", "b", "c"}, m.Selected())
	assert.True(t, m.AllSelected())
	m.SelectAll(false)
	assert.Empty(t, m.Selected())
	m.SelectAll(false)
	assert.Empty(t, m.Selected(), "select all false is idempotent")

	m.Toggle("b")
	assert.True(t, m.IsSelected("b"))
	m.Toggle("b")
	assert.False(t, m.IsSelected("b"), "toggling twice restores membership")

	m.Toggle("zzz")
	assert.False(t, m.IsSelected("zzz"), "ids outside the loaded page are ignored")

	m.Toggle("c")
	m.Toggle("a")
	assert.Equal(t, []string{"a", "c"}, m.Selected(), "page order")

	m.Reset([]string{"d"})
	assert.Empty(t, m.Selected(), "a new page clears the selection")
	m.Toggle("d")
	m.Clear()
	assert.Empty(t, m.Selected())
	assert.False(t, m.AllSelected())
}

func TestEmptySelectionNeverCallsBackend(t *testing.T) {
	api := &fakeAPI{reply: `{"success":true}`}
	exp := &fakeExporter{}
	m := newTestManager(api, exp)
	ctx := context.Background()

	results := []model.Result{
		m.Reclassify(ctx, "class-1"),
		m.Email(ctx, "Hello", "Body"),
		m.Archive(ctx),
		m.Export(ctx, model.FormatCSV, nil),
	}
	for i, r := range results {
		assert.False(t, r.Success, "result %d", i)
		assert.Equal(t, model.ErrValidationError, r.Code)
	}
	assert.Zero(t, api.count())
	assert.Empty(t, exp.reqs)
}

func TestReclassify(t *testing.T) {
	api := &fakeAPI{reply: `{"success":true}`}
	m := newTestManager(api, &fakeExporter{})
	m.Toggle("a")

	res := m.Reclassify(context.Background(), " ")
	assert.False(t, res.Success)
	assert.Equal(t, "Please select a target class", res.Error)
	assert.Zero(t, api.count())

	res = m.Reclassify(context.Background(), "class-9")
	require.True(t, res.Success)
	assert.Equal(t, "1 students reassigned", res.Message)
	assert.True(t, res.Invalidates(model.TargetList))
	assert.Equal(t, "/students/bulk/change-class", api.posts[0].path)
	assert.Equal(t, []string{"a"}, api.posts[0].body["entityIds"])
	assert.Equal(t, "class-9", api.posts[0].body["newRelatedId"])
	assert.Empty(t, m.Selected())
}

func TestEmail(t *testing.T) {
	api := &fakeAPI{reply: `{"success":true,"message":"Queued 2 emails"}`}
	m := newTestManager(api, &fakeExporter{})
	m.Toggle("a")
	m.Toggle("b")

	for _, tc := range [][2]string{{"", "body"}, {"subject", ""}, {" ", " "}} {
		res := m.Email(context.Background(), tc[0], tc[1])
		assert.Equal(t, "Subject and message are required", res.Error)
	}
	assert.Zero(t, api.count())

	res := m.Email(context.Background(), "Trip", "Bring a coat")
	require.True(t, res.Success)
	assert.Equal(t, "Queued 2 emails", res.Message)
	assert.Equal(t, "/students/bulk/email", api.posts[0].path)
	assert.Equal(t, "Trip", api.posts[0].body["subject"])
	assert.Equal(t, "Bring a coat", api.posts[0].body["message"])
	assert.Empty(t, m.Selected())
}

func TestArchive_scenario(t *testing.T) {
	api := &fakeAPI{reply: `{"success":true,"message":"2 archived"}`}
	m := newTestManager(api, &fakeExporter{})
	m.Toggle("a")
	m.Toggle("b")

	res := m.Archive(context.Background())
	require.True(t, res.Success)
	assert.Equal(t, "2 archived", res.Message)
	assert.Empty(t, m.Selected())
	assert.ElementsMatch(t, []model.Target{model.TargetList, model.TargetKPIs}, res.Invalidate)
	assert.Equal(t, "/students/bulk/archive", api.posts[0].path)
	assert.Equal(t, []string{"a", "b"}, api.posts[0].body["entityIds"])
}

func TestFailureKeepsSelection(t *testing.T) {
	api := &fakeAPI{err: model.NewBackendError(400, "Some students have pending fees")}
	m := newTestManager(api, &fakeExporter{})
	m.Toggle("a")

	res := m.Archive(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "Some students have pending fees", res.Error)
	assert.Equal(t, []string{"a"}, m.Selected())
	assert.False(t, m.Processing())

	api.err = model.NewBackendUnavailableError()
	res = m.Archive(context.Background())
	assert.Equal(t, "The school service is temporarily unavailable", res.Error)
}

func TestExport_keepsSelectionAndDelegates(t *testing.T) {
	exp := &fakeExporter{}
	m := newTestManager(&fakeAPI{}, exp)
	m.Toggle("c")
	m.Toggle("a")

	res := m.Export(context.Background(), model.FormatExcel, nil)
	require.True(t, res.Success)
	require.Len(t, exp.reqs, 1)
	assert.Equal(t, transfer.ExportRequest{Endpoint: "students", Format: model.FormatExcel, IDs: []string{"a", "c"}}, exp.reqs[0])
	assert.Equal(t, []string{"a", "c"}, m.Selected())
}

func TestSecondActionWhileProcessingIsRejected(t *testing.T) {
	api := &fakeAPI{reply: `{"success":true}`, block: make(chan struct{})}
	m := newTestManager(api, &fakeExporter{})
	m.SelectAll(true)

	done := make(chan model.Result)
	go func() { done <- m.Archive(context.Background()) }()
	require.Eventually(t, m.Processing, time.Second, time.Millisecond)

	res := m.Email(context.Background(), "s", "m")
	assert.False(t, res.Success)
	assert.Equal(t, model.ErrConflict, res.Code)
	assert.Equal(t, "A bulk action is already in progress", res.Error)
	assert.Equal(t, 1, api.count())

	close(api.block)
	assert.True(t, (<-done).Success)
	assert.False(t, m.Processing())
}
