// Package integration provides a reusable test harness for end-to-end
// testing of the console backend. It starts the full HTTP stack against a
// mock school API with an in-memory session store.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/apiclient"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/page"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transport"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Campus is a well-formed campus id used as the default scope.
const Campus = "507f1f77bcf86cd799439011"

// TestHarness encapsulates a fully wired console backend with a mock school
// API for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer
	api    *MockSchoolAPI

	// Internal components exposed for advanced test scenarios.
	Registry  *definition.Registry
	Pages     *page.Registry
	Session   *session.Session
	Navigator *session.RecordingNavigator
	Store     *session.MemoryStore
	Client    *apiclient.Client
	Metrics   *observability.Metrics
	Config    *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	handlerTimeout time.Duration
	apiTimeout     time.Duration
	maxUpload      int64
	students       []map[string]any
}

// WithDefinitions sets the definition directories to load. Relative paths are
// resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithAPITimeout sets the timeout of calls to the school API.
func WithAPITimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.apiTimeout = d
	}
}

// WithMaxUpload sets the import file size limit.
func WithMaxUpload(n int64) HarnessOption {
	return func(c *harnessConfig) {
		c.maxUpload = n
	}
}

// WithStudents seeds the mock school API. Without it, StudentsFixture is used.
func WithStudents(students ...map[string]any) HarnessOption {
	return func(c *harnessConfig) {
		c.students = students
	}
}

// NewTestHarness creates and starts a full console backend. The servers are
// cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		apiTimeout:     5 * time.Second,
		students:       StudentsFixture(),
	}
	for _, opt := range opts {
		opt(hc)
	}
	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{"definitions"}
	}
	for i, dir := range hc.definitionDirs {
		if !filepath.IsAbs(dir) {
			hc.definitionDirs[i] = filepath.Join(testdataDir(), dir)
		}
	}

	h := &TestHarness{t: t, issuer: newTokenIssuer()}

	// Step 1: Start the mock school API.
	h.api = newMockSchoolAPI(t, h.issuer)
	h.api.SeedStudents(hc.students...)

	// Step 2: Build config.
	cfg := config.Defaults()
	cfg.API.BaseURL = h.api.URL()
	cfg.API.Timeout = hc.apiTimeout
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Session.Store = "memory"
	cfg.Entity.SearchDebounce = 20 * time.Millisecond
	cfg.Transfer.AutoCloseDelay = 20 * time.Millisecond
	cfg.Notifications.TTL = time.Minute
	if hc.maxUpload > 0 {
		cfg.Transfer.MaxUploadBytes = hc.maxUpload
	}
	cfg.Definitions.Directories = hc.definitionDirs
	h.Config = cfg

	// Step 3: Load and validate definitions.
	defs, err := definition.NewLoader(cfg.Entity, zap.NewNop()).LoadAll(cfg.Definitions.Directories)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("definitions invalid: %v", verrs)
	}
	h.Registry = definition.NewRegistry(defs)

	// Step 4: Session, API client and pages.
	logger := zap.NewNop()
	h.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	h.Store = session.NewMemoryStore()
	h.Navigator = &session.RecordingNavigator{}
	h.Session = session.New(h.Store, h.Navigator, session.Options{
		LoginRoute: cfg.Session.LoginRoute,
		Logger:     logger,
		Metrics:    h.Metrics,
	})
	h.Client = apiclient.New(cfg.API, h.Session,
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(h.Metrics),
	)
	h.Pages = page.NewRegistry(h.Registry, page.Deps{
		API:           h.Client,
		Entity:        cfg.Entity,
		Transfer:      cfg.Transfer,
		Notifications: cfg.Notifications,
		Logger:        logger,
		Metrics:       h.Metrics,
	})
	t.Cleanup(h.Pages.CloseAll)

	// Step 5: Build router with the full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     h.Metrics,
		Auth:        h.Client,
		Session:     h.Session,
		Navigator:   h.Navigator,
		Definitions: h.Registry,
		Pages:       h.Pages,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Registry.Count() > 0 },
			SchoolAPI:         h.Client,
			TokenStore:        h.Store,
		},
	})

	// Step 6: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the console backend's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// API returns the mock school API.
func (h *TestHarness) API() *MockSchoolAPI {
	return h.api
}

// GenerateToken creates a valid access token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// SignIn logs in through the console and fails the test on error.
func (h *TestHarness) SignIn(t *testing.T) {
	t.Helper()
	resp := h.POST("/ui/session/login", map[string]string{"email": "admin@school.test", "password": TestPassword})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// SignInWithToken stores a token directly, bypassing the login endpoint.
func (h *TestHarness) SignInWithToken(t *testing.T, token string) {
	t.Helper()
	if err := h.Session.SetToken(context.Background(), token); err != nil {
		t.Fatalf("store token: %v", err)
	}
}

// --- Page helpers ---

// PageResponse is the body of every page event.
type PageResponse struct {
	Result *model.Result `json:"result"`
	View   page.View     `json:"view"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error    model.ErrorEnvelope `json:"error"`
	Redirect string              `json:"redirect"`
}

// OpenPage opens pageID on the default campus and returns the first view.
func (h *TestHarness) OpenPage(t *testing.T, pageID string) PageResponse {
	t.Helper()
	var out PageResponse
	h.AssertJSON(t, h.GET(fmt.Sprintf("/ui/pages/%s?scope=%s&width=1280", pageID, Campus)), http.StatusOK, &out)
	return out
}

// WaitForView polls the page until cond holds and returns the last view.
func (h *TestHarness) WaitForView(t *testing.T, pageID string, cond func(page.View) bool) page.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last PageResponse
	for {
		resp := h.GET("/ui/pages/" + pageID + "?width=1280")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("polling %s: status %d: %s", pageID, resp.StatusCode, h.ReadBody(resp))
		}
		h.ParseJSON(resp, &last)
		if cond(last.View) {
			return last.View
		}
		if time.Now().After(deadline) {
			t.Fatalf("view of %s never reached the expected state:\n%s", pageID, FormatJSON(last.View))
		}
		time.Sleep(15 * time.Millisecond)
	}
}

// Loaded reports whether both list and KPIs have settled.
func Loaded(v page.View) bool {
	return v.Status != page.StatusLoading && len(v.KPIs) > 0 && !v.KPIs[0].Placeholder
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, nil)
}

// GETWithHeaders performs a GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, headers)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, nil)
}

// PUT performs a PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, nil)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, nil)
}

// Upload posts a multipart form with one file part named "file".
func (h *TestHarness) Upload(path, filename string, data []byte) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		h.t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	return h.send(mustRequest(h.t, "POST", h.server.URL+path, &buf, map[string]string{
		"Content-Type": mw.FormDataContentType(),
	}))
}

func (h *TestHarness) doRequest(method, path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
		if headers == nil {
			headers = map[string]string{}
		}
		headers["Content-Type"] = "application/json"
	}
	return h.send(mustRequest(h.t, method, h.server.URL+path, bodyReader, headers))
}

func mustRequest(t *testing.T, method, url string, body io.Reader, headers map[string]string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func (h *TestHarness) send(req *http.Request) *http.Response {
	h.t.Helper()
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	data := h.ReadBody(resp)
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Fixtures ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// StudentFixture returns a student record as the school API serves it.
func StudentFixture(id, firstName, status string) map[string]any {
	return map[string]any{
		"id":        id,
		"firstName": firstName,
		"lastName":  "Lovelace",
		"email":     firstName + "@school.test",
		"status":    status,
		"classId":   "class-1",
	}
}

// StudentsFixture returns three active students and one suspended one.
func StudentsFixture() []map[string]any {
	return []map[string]any{
		StudentFixture("stu-1", "Ada", "active"),
		StudentFixture("stu-2", "Grace", "active"),
		StudentFixture("stu-3", "Alan", "active"),
		StudentFixture("stu-4", "Edsger", "suspended"),
	}
}

// ErrorFixture returns an error body as the school API shapes it.
func ErrorFixture(message string) map[string]any {
	return map[string]any{
		"success": false,
		"message": message,
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
