package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "64f0c0ffee64f0c0ffee1234"

const studentsDefinition = `version: "1.0.0"
pages:
  - id: students
    title: Students
    entity: Student
    endpoint: students
    columns:
      - field: firstName
        label: First name
    bulk_actions: [export]
`

// testEnv is a temp directory with a config file, a definitions directory
// and a fake school API.
type testEnv struct {
	mu       sync.Mutex
	dir      string
	config   string
	requests []string
	uploads  map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{dir: t.TempDir(), uploads: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"message": "Invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-1",
			"user":  map[string]any{"firstName": "Ada"},
		})
	})
	mux.HandleFunc("/students/import/template/csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="students_template.csv"`)
		io.WriteString(w, "firstName,lastName\n")
	})
	mux.HandleFunc("/students/export/csv", func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.requests = append(env.requests, r.URL.RawQuery)
		env.mu.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, "firstName\nAda\n")
	})
	mux.HandleFunc("/students/import", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		env.mu.Lock()
		env.uploads["campusId"] = r.FormValue("campusId")
		env.uploads["dryRun"] = r.FormValue("dryRun")
		env.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"valid": 2, "failed": 0},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	defsDir := filepath.Join(env.dir, "definitions")
	require.NoError(t, os.MkdirAll(defsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "students.yaml"), []byte(studentsDefinition), 0o644))

	env.config = filepath.Join(env.dir, "config.yaml")
	cfg := fmt.Sprintf(`api:
  base_url: %q
  timeout: 5s
session:
  store: file
  file_path: %q
transfer:
  download_dir: %q
definitions:
  directories: [%q]
`, srv.URL, filepath.Join(env.dir, "session.json"), filepath.Join(env.dir, "downloads"), defsDir)
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", e.config))
	err := cmd.Execute()
	e.mu.Lock()
	defer e.mu.Unlock()
	return out.String(), err
}

func TestTemplate_downloadsIntoDir(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "template", "students")
	require.NoError(t, err)
	assert.Contains(t, out, "Template downloaded")

	data, err := os.ReadFile(filepath.Join(env.dir, "downloads", "students_template.csv"))
	require.NoError(t, err)
	assert.Equal(t, "firstName,lastName\n", string(data))
}

func TestTemplate_dirFlag(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.dir, "elsewhere")

	_, err := env.run(t, "template", "students", "--dir", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "students_template.csv"))
}

func TestTemplate_unknownPage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "template", "parents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown page "parents"`)
}

func TestExport_filtersAndIDs(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "export", "students", "status=active", "--scope", testScope)
	require.NoError(t, err)
	_, err = env.run(t, "export", "students", "--ids", "a, b")
	require.NoError(t, err)

	require.Len(t, env.requests, 2)
	assert.Contains(t, env.requests[0], "status=active")
	assert.Contains(t, env.requests[0], "campus="+testScope)
	assert.Contains(t, env.requests[1], "ids=a%2Cb")
	assert.NotContains(t, env.requests[1], "status")
}

func TestExport_badFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "export", "students", "--format", "pdf")
	require.Error(t, err)
	assert.Empty(t, env.requests)
}

func TestImport_dryRun(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(env.dir, "students.csv")
	require.NoError(t, os.WriteFile(file, []byte("firstName\nAda\nGrace\n"), 0o644))

	out, err := env.run(t, "import", "students", file, "--scope", testScope, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, testScope, env.uploads["campusId"])
	assert.Equal(t, "true", env.uploads["dryRun"])
	assert.Contains(t, out, "Validation completed: 2 valid, 0 invalid")
	assert.Contains(t, out, `"dry_run": true`)
}

func TestImport_requiresScope(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(env.dir, "students.csv")
	require.NoError(t, os.WriteFile(file, []byte("firstName\n"), 0o644))

	_, err := env.run(t, "import", "students", file)
	require.Error(t, err)
	assert.Empty(t, env.uploads)
}

func TestLogin_storesSession(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "login", "--email", "ada@school.test", "--password", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as Ada\n", out)

	data, err := os.ReadFile(filepath.Join(env.dir, "session.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tok-1")
}

func TestLogin_passwordFromEnv(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("SMS_PASSWORD", "secret")

	_, err := env.run(t, "login", "--email", "ada@school.test")
	require.NoError(t, err)
}

func TestLogin_rejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "login", "--email", "ada@school.test", "--password", "wrong")
	require.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"status=active", "year=2024", "boarding=true", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"status":   "active",
		"year":     float64(2024),
		"boarding": true,
		"note":     "a=b",
	}, got)

	_, err = parseFilters([]string{"status"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=x"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}

func TestRootCmd_commands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	joined := strings.Join(names, " ")
	for _, want := range []string{"serve", "export", "import", "template", "login", "logout"} {
		assert.Contains(t, joined, want)
	}
}
