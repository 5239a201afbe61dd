package cli

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
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

const projectsBody = `{"projects": {
  "1111": {"name": "old", "created": "2024-01-01T00:00:00Z", "modified": "2024-01-02T00:00:00Z"},
  "2281573611164": {"name": "author_new", "created": "2024-03-01T00:00:00Z", "modified": "2024-03-05T10:00:00Z"}
}}`

const modelsBody = `{
  "columnModel": {"columns": [{"name": "Column 1", "cellIndex": 0}, {"name": "Column 2", "cellIndex": 1}]},
  "recordModel": {"hasRecords": false}
}`

// fakeServer — минимальный OpenRefine: ключ handlers — команда без
// суффикса (export-rows/<file> → export-rows).
type fakeServer struct {
	*httptest.Server

	mu    sync.Mutex
	forms map[string][]map[string][]string
}

func newFakeServer(t *testing.T, handlers map[string]http.HandlerFunc) *fakeServer {
	t.Helper()

	all := map[string]http.HandlerFunc{
		"get-csrf-token":           jsonBody(`{"token":"tok"}`),
		"get-all-project-metadata": jsonBody(projectsBody),
		"get-project-metadata":     jsonBody(`{"name":"author_new"}`),
		"get-models":               jsonBody(modelsBody),
	}
	for k, v := range handlers {
		all[k] = v
	}

	f := &fakeServer{forms: map[string][]map[string][]string{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := strings.TrimPrefix(r.URL.Path, "/command/core/")
		if i := strings.IndexByte(command, '/'); i >= 0 {
			command = command[:i]
		}
		r.ParseForm()

		f.mu.Lock()
		f.forms[command] = append(f.forms[command], r.PostForm)
		f.mu.Unlock()

		h, ok := all[command]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) calls(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forms[command])
}

func (f *fakeServer) lastForm(t *testing.T, command string) map[string][]string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	forms := f.forms[command]
	require.NotEmpty(t, forms, "no request to %s", command)
	return forms[len(forms)-1]
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

// execute запускает CLI с аргументами против srv.
func execute(t *testing.T, srv *fakeServer, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"REFINE_SERVER", "REFINE_HOST", "REFINE_PORT", "REFINE_POSTGRES_DSN", "REFINE_AMQP_URL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	var out, errOut bytes.Buffer
	app := NewApp("test", &out, &errOut)
	root := NewRootCmd(app)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--server", srv.URL}, args...))

	err = root.ExecuteContext(context.Background())
	require.NoError(t, app.Close())
	return out.String(), errOut.String(), err
}

func TestLegacy_Usage(t *testing.T) {
	srv := newFakeServer(t, nil)

	stdout, _, err := execute(t, srv)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Zero(t, srv.calls("get-all-project-metadata"))

	stdout, _, err = execute(t, srv, "--export", "1", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Zero(t, srv.calls("export-rows"))
}

func TestLegacy_List(t *testing.T) {
	srv := newFakeServer(t, nil)

	stdout, _, err := execute(t, srv, "--list")
	require.NoError(t, err)
	assert.Equal(t, " 2281573611164: author_new\n          1111: old\n", stdout)
}

func TestLegacy_ExportStdout(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"export-rows": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "a\tb\n1\t2\n")
		},
	})

	stdout, _, err := execute(t, srv, "-E", "2281573611164")
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n1\t2\n", stdout)
	assert.Equal(t, []string{"tsv"}, srv.lastForm(t, "export-rows")["format"])
}

func TestLegacy_ExportFileFormatFromExtension(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"export-rows": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "a,b\n")
		},
	})
	path := filepath.Join(t.TempDir(), "project.csv.gz")

	_, _, err := execute(t, srv, "--export", "--output="+path, srv.URL+"/project?project=2281573611164")
	require.NoError(t, err)
	assert.Equal(t, []string{"csv"}, srv.lastForm(t, "export-rows")["format"])

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestLegacy_ApplyFailure(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"apply-operations": jsonBody(`{"code":"error","message":"bad operation"}`),
		"export-rows": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "x\n")
		},
	})
	ops := filepath.Join(t.TempDir(), "trim.json")
	require.NoError(t, os.WriteFile(ops, []byte(`[{"op":"core/text-transform"}]`), 0o644))

	stdout, stderr, err := execute(t, srv, "--apply", ops, "--export", "2281573611164")
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, stderr, "Failed to apply "+ops+": error\n")
	assert.Equal(t, "x\n", stdout, "export still runs after a failed apply")
}

func TestLegacy_ApplyOK(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"apply-operations": jsonBody(`{"code":"ok"}`),
	})
	ops := filepath.Join(t.TempDir(), "trim.json")
	require.NoError(t, os.WriteFile(ops, []byte("// trim\n[]"), 0o644))

	_, stderr, err := execute(t, srv, "-f", ops, "2281573611164")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	form := srv.lastForm(t, "apply-operations")
	assert.Equal(t, []string{"2281573611164"}, form["project"])
	assert.Equal(t, []string{"[]"}, form["operations"])
}

func TestListCmd_JSON(t *testing.T) {
	srv := newFakeServer(t, nil)

	stdout, _, err := execute(t, srv, "list", "--json")
	require.NoError(t, err)

	var projects []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &projects))
	require.Len(t, projects, 2)
	assert.Equal(t, "2281573611164", projects[0].ID)
	assert.Equal(t, "old", projects[1].Name)
}

func TestRenameColumnCmd(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"rename-column": jsonBody(`{"code":"ok"}`),
	})

	_, stderr, err := execute(t, srv, "rename-column", "2281573611164", "Column 1", "Affiliation_ID")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Column renamed")

	form := srv.lastForm(t, "rename-column")
	assert.Equal(t, []string{"Column 1"}, form["oldColumnName"])
	assert.Equal(t, []string{"Affiliation_ID"}, form["newColumnName"])
}

func TestClusterCmd_TSV(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"compute-clusters": jsonBody(`[[{"v":"IBM","c":5},{"v":"I.B.M.","c":1}],[{"v":"MIT","c":3},{"v":"M.I.T","c":2}]]`),
	})

	stdout, _, err := execute(t, srv, "cluster", "2281573611164", "Column 2")
	require.NoError(t, err)
	assert.Equal(t, "IBM\tI.B.M.\nMIT\tM.I.T\n", stdout)
}

func TestClusterEditCmd_Limit(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"compute-clusters": jsonBody(`[[{"v":"IBM","c":5},{"v":"I.B.M.","c":1}],[{"v":"MIT","c":3},{"v":"M.I.T","c":2}]]`),
		"mass-edit":        jsonBody(`{"code":"ok"}`),
	})

	stdout, stderr, err := execute(t, srv, "cluster-edit", "--limit", "1", "2281573611164", "Column 2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "I.B.M.")
	assert.NotContains(t, stdout, "M.I.T")
	assert.Contains(t, stderr, "Merged 1 of 2 clusters")

	form := srv.lastForm(t, "mass-edit")
	assert.JSONEq(t, `[{"from":["I.B.M."],"fromBlank":false,"fromError":false,"to":"IBM"}]`, form["edits"][0])
}

func TestFacetCmd(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"compute-facets": jsonBody(`{"facets":[{"name":"Column 2","expression":"value","choices":[
			{"v":{"v":"b","l":"b"},"c":1,"s":false},
			{"v":{"v":"a","l":"a"},"c":4,"s":false}
		],"blankChoice":{"s":false,"c":2}}],"mode":"row-based"}`),
	})

	stdout, _, err := execute(t, srv, "facet", "--top", "1", "2281573611164", "Column 2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"Column", "2", "a", "4"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"Column", "2", "(blank)", "2"}, strings.Fields(lines[3]))
}

func TestJobHistory_NeedsPostgres(t *testing.T) {
	srv := newFakeServer(t, nil)

	_, _, err := execute(t, srv, "job", "history")
	assert.ErrorIs(t, err, ErrNoPostgres)
}

func TestJobRun(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"rename-column": jsonBody(`{"code":"ok"}`),
		"export-rows": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "Affiliation_ID\n1\n")
		},
	})

	dir := t.TempDir()
	jobFile := filepath.Join(dir, "authors.yaml")
	require.NoError(t, os.WriteFile(jobFile, []byte(`
name: authors-clean
project: "2281573611164"
rename_columns:
  Column 1: Affiliation_ID
export:
  output: out/{{.Job}}.tsv
`), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "out"), 0o755))

	stdout, _, err := execute(t, srv, "job", "run", "--json", jobFile)
	require.NoError(t, err)

	var results []struct {
		Job     string `json:"job"`
		Status  string `json:"status"`
		Renamed int    `json:"renamed"`
		Output  string `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "succeeded", results[0].Status)
	assert.Equal(t, 1, results[0].Renamed)

	data, err := os.ReadFile(filepath.Join(dir, "out", "authors-clean.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "Affiliation_ID\n1\n", string(data))
}

func TestJobRun_FailureReported(t *testing.T) {
	srv := newFakeServer(t, map[string]http.HandlerFunc{
		"rename-column": jsonBody(`{"code":"error","message":"no such column"}`),
	})

	jobFile := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(jobFile, []byte(`
name: broken
project: "2281573611164"
rename_columns: {"Column 9": X}
`), 0o644))

	_, stderr, err := execute(t, srv, "job", "run", jobFile)
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, stderr, "Job broken failed")
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny(nil, "job.finished"))
	assert.True(t, matchesAny([]string{"project.*", "job.#"}, "job.finished"))
	assert.False(t, matchesAny([]string{"project.*"}, "job.finished"))
}
