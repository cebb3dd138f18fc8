package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Operation names of the mock school API.
const (
	OpLogin           = "login"
	OpRefresh         = "refresh"
	OpLogout          = "logout"
	OpListStudents    = "listStudents"
	OpDashboard       = "campusDashboard"
	OpCreateStudent   = "createStudent"
	OpUpdateStudent   = "updateStudent"
	OpArchiveStudent  = "archiveStudent"
	OpBulkChangeClass = "bulkChangeClass"
	OpBulkEmail       = "bulkEmail"
	OpBulkArchive     = "bulkArchive"
	OpExport          = "exportStudents"
	OpImport          = "importStudents"
	OpImportTemplate  = "importTemplate"
)

// TestPassword is the only password the mock login accepts.
const TestPassword = "secret"

// operationRoute maps an operation name to its method and path pattern.
type operationRoute struct {
	method      string
	pathPattern string
	public      bool
}

// SchoolRoutes returns the operation routes of the school API.
func SchoolRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		OpLogin:           {method: "POST", pathPattern: "/auth/login", public: true},
		OpRefresh:         {method: "POST", pathPattern: "/auth/refresh", public: true},
		OpLogout:          {method: "POST", pathPattern: "/auth/logout", public: true},
		OpListStudents:    {method: "GET", pathPattern: "/students"},
		OpDashboard:       {method: "GET", pathPattern: "/campus/{id}/dashboard"},
		OpCreateStudent:   {method: "POST", pathPattern: "/students"},
		OpUpdateStudent:   {method: "PUT", pathPattern: "/students/{id}"},
		OpArchiveStudent:  {method: "DELETE", pathPattern: "/students/{id}"},
		OpBulkChangeClass: {method: "POST", pathPattern: "/students/bulk/change-class"},
		OpBulkEmail:       {method: "POST", pathPattern: "/students/bulk/email"},
		OpBulkArchive:     {method: "POST", pathPattern: "/students/bulk/archive"},
		OpExport:          {method: "GET", pathPattern: "/students/export/{format}"},
		OpImport:          {method: "POST", pathPattern: "/students/import"},
		OpImportTemplate:  {method: "GET", pathPattern: "/students/import/template/{format}"},
	}
}

// MockSchoolAPI is a configurable HTTP test server that simulates the school
// REST API. Every operation has a stateful default behaviour over an
// in-memory student list; configured responses take precedence. All received
// requests are recorded for later assertion.
type MockSchoolAPI struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	mu            sync.RWMutex
	operations    map[string]*operationConfig
	receivedByOp  map[string][]*RecordedRequest
	students      []map[string]any
	nextID        int
	refreshClosed bool
}

// RecordedRequest captures the details of a request received by the mock.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	Form        map[string]string
	ReceivedAt  time.Time
}

type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status     int
	body       any
	delay      time.Duration
	connError  bool
	headerFunc func(http.Header)
}

// OperationMock is a builder for configuring responses of one operation.
type OperationMock struct {
	backend *MockSchoolAPI
	opID    string
}

func newMockSchoolAPI(t *testing.T, issuer *tokenIssuer) *MockSchoolAPI {
	t.Helper()

	mb := &MockSchoolAPI{
		t:            t,
		issuer:       issuer,
		operations:   make(map[string]*operationConfig),
		receivedByOp: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for opID, route := range SchoolRoutes() {
		mux.HandleFunc(route.method+" "+route.pathPattern, mb.handleOperation(opID, route))
	}
	// The health probe of the console hits the API root.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "school api"})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)
	return mb
}

// URL returns the base URL of the mock server.
func (mb *MockSchoolAPI) URL() string {
	return mb.server.URL
}

// Close stops the server so that every further call fails to connect.
func (mb *MockSchoolAPI) Close() {
	mb.server.Close()
}

// SeedStudents replaces the student list.
func (mb *MockSchoolAPI) SeedStudents(students ...map[string]any) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.students = append([]map[string]any(nil), students...)
	mb.nextID = len(students)
}

// Students returns a copy of the current student list.
func (mb *MockSchoolAPI) Students() []map[string]any {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return slices.Clone(mb.students)
}

// ExpireSession revokes every access token. With refresh also closed, the
// next authenticated call ends the session.
func (mb *MockSchoolAPI) ExpireSession(refreshToo bool) {
	mb.issuer.Revoke()
	mb.mu.Lock()
	mb.refreshClosed = refreshToo
	mb.mu.Unlock()
}

// OnOperation returns a builder for configuring responses of an operation.
func (mb *MockSchoolAPI) OnOperation(operationID string) *OperationMock {
	return &OperationMock{backend: mb, opID: operationID}
}

// RespondWith configures the operation to respond with status and body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body})
	return om
}

// RespondWithError configures an error envelope response.
func (om *OperationMock) RespondWithError(status int, message string) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		status: status,
		body:   ErrorFixture(message),
	})
	return om
}

// RespondWithDelay configures a delayed response to simulate a slow API.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body, delay: delay})
	return om
}

// RespondWithConnectionError closes the connection without answering.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{connError: true})
	return om
}

// RespondWithHeaders configures additional response headers.
func (om *OperationMock) RespondWithHeaders(status int, body any, headerFunc func(http.Header)) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{status: status, body: body, headerFunc: headerFunc})
	return om
}

func (mb *MockSchoolAPI) addResponse(opID string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[opID]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[opID] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockSchoolAPI) handleOperation(opID string, route operationRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := record(r)

		mb.mu.Lock()
		mb.receivedByOp[opID] = append(mb.receivedByOp[opID], rec)
		mb.mu.Unlock()

		if !route.public {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if _, err := mb.issuer.Verify(token); err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorFixture("jwt expired"))
				return
			}
		}

		resp := mb.getNextResponse(opID)
		if resp == nil {
			mb.defaultBehaviour(opID, w, r, rec)
			return
		}

		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, _ := hj.Hijack(); conn != nil {
					conn.Close()
				}
			}
			return
		}
		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}
		if resp.headerFunc != nil {
			resp.headerFunc(w.Header())
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.status)
		switch body := resp.body.(type) {
		case nil:
		case []byte:
			w.Write(body)
		default:
			json.NewEncoder(w).Encode(body)
		}
	}
}

func record(r *http.Request) *RecordedRequest {
	rec := &RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryParams: make(map[string]string),
		Headers:     r.Header.Clone(),
		ReceivedAt:  time.Now(),
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			rec.QueryParams[key] = values[0]
		}
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			rec.Form = make(map[string]string)
			for key, values := range r.MultipartForm.Value {
				rec.Form[key] = values[0]
			}
			for key, files := range r.MultipartForm.File {
				rec.Form[key] = files[0].Filename
			}
		}
		return rec
	}

	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		rec.RawBody = body
		if len(body) > 0 {
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err == nil {
				rec.Body = parsed
			}
		}
	}
	return rec
}

func (mb *MockSchoolAPI) getNextResponse(opID string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[opID]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// defaultBehaviour implements the operation over the in-memory student list.
func (mb *MockSchoolAPI) defaultBehaviour(opID string, w http.ResponseWriter, r *http.Request, rec *RecordedRequest) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	switch opID {
	case OpLogin:
		if rec.Body["password"] != TestPassword {
			writeJSON(w, http.StatusUnauthorized, ErrorFixture("Invalid email or password"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"accessToken": mb.issuer.GenerateToken(AdminClaims()),
			"user":        map[string]any{"firstName": "Ada", "email": rec.Body["email"], "role": "ADMIN"},
		}})
	case OpRefresh:
		if mb.refreshClosed {
			writeJSON(w, http.StatusUnauthorized, ErrorFixture("refresh token expired"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": mb.issuer.GenerateToken(AdminClaims())})
	case OpLogout:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case OpListStudents:
		mb.listStudents(w, r)
	case OpDashboard:
		active := 0
		for _, st := range mb.students {
			if st["status"] == "active" {
				active++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"students":   map[string]any{"total": len(mb.students), "active": active, "trend": 4.5},
			"attendance": map[string]any{"rate": 92.5},
		}})

	case OpCreateStudent:
		if rec.Body["firstName"] == nil || rec.Body["firstName"] == "" {
			writeJSON(w, http.StatusBadRequest, ErrorFixture("firstName is required"))
			return
		}
		mb.nextID++
		st := rec.Body
		st["id"] = fmt.Sprintf("stu-%d", mb.nextID)
		if st["status"] == nil {
			st["status"] = "active"
		}
		mb.students = append(mb.students, st)
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Student created", "data": st})
	case OpUpdateStudent:
		st := mb.find(r.PathValue("id"))
		if st == nil {
			writeJSON(w, http.StatusNotFound, ErrorFixture("Student not found"))
			return
		}
		for k, v := range rec.Body {
			st[k] = v
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": st})
	case OpArchiveStudent:
		if mb.find(r.PathValue("id")) == nil {
			writeJSON(w, http.StatusNotFound, ErrorFixture("Student not found"))
			return
		}
		mb.remove(r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Student archived"})

	case OpBulkArchive:
		ids := stringList(rec.Body["entityIds"])
		mb.remove(ids...)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("%d students archived", len(ids))})
	case OpBulkChangeClass:
		ids := stringList(rec.Body["entityIds"])
		for _, id := range ids {
			if st := mb.find(id); st != nil {
				st["classId"] = rec.Body["newRelatedId"]
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("%d students moved", len(ids))})
	case OpBulkEmail:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case OpExport, OpImportTemplate:
		name := "students." + r.PathValue("format")
		if opID == OpImportTemplate {
			name = "students_template." + r.PathValue("format")
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "id,firstName\n")
		for _, st := range mb.students {
			fmt.Fprintf(w, "%v,%v\n", st["id"], st["firstName"])
		}
	case OpImport:
		key := "imported"
		if rec.Form["dryRun"] == "true" {
			key = "valid"
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			key: 2, "failed": 1,
			"errors": []any{map[string]any{"row": 3, "message": "firstName is required"}},
		}})
	default:
		writeJSON(w, http.StatusNotFound, ErrorFixture("mock: no behaviour for "+opID))
	}
}

// listStudents filters by status and search and paginates with page/limit.
func (mb *MockSchoolAPI) listStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var matched []map[string]any
	for _, st := range mb.students {
		if v := q.Get("status"); v != "" && st["status"] != v {
			continue
		}
		if s := strings.ToLower(q.Get("search")); s != "" {
			name := strings.ToLower(fmt.Sprint(st["firstName"], " ", st["lastName"]))
			if !strings.Contains(name, s) {
				continue
			}
		}
		matched = append(matched, st)
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    matched[start:end],
		"pagination": map[string]any{
			"total": len(matched),
			"page":  page,
			"limit": limit,
		},
	})
}

func (mb *MockSchoolAPI) find(id string) map[string]any {
	for _, st := range mb.students {
		if st["id"] == id {
			return st
		}
	}
	return nil
}

func (mb *MockSchoolAPI) remove(ids ...string) {
	mb.students = slices.DeleteFunc(mb.students, func(st map[string]any) bool {
		id, _ := st["id"].(string)
		return slices.Contains(ids, id)
	})
}

// AssertCalled verifies that the operation was called the expected number of times.
func (mb *MockSchoolAPI) AssertCalled(t *testing.T, operationID string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.receivedByOp[operationID])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock school API: operation %q called %d times, want %d", operationID, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the operation was never called.
func (mb *MockSchoolAPI) AssertNotCalled(t *testing.T, operationID string) {
	t.Helper()
	mb.AssertCalled(t, operationID, 0)
}

// CallCount returns how often the operation was called.
func (mb *MockSchoolAPI) CallCount(operationID string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.receivedByOp[operationID])
}

// LastRequest returns the last request received for the operation, or nil.
func (mb *MockSchoolAPI) LastRequest(operationID string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the operation.
func (mb *MockSchoolAPI) AllRequests(operationID string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return slices.Clone(mb.receivedByOp[operationID])
}

// Reset clears recorded requests and configured responses.
func (mb *MockSchoolAPI) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.operations = make(map[string]*operationConfig)
	mb.receivedByOp = make(map[string][]*RecordedRequest)
}

// ResetOperation clears recorded requests and configured responses for one operation.
func (mb *MockSchoolAPI) ResetOperation(operationID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.operations, operationID)
	delete(mb.receivedByOp, operationID)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
