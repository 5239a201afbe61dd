package refine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// recordedRequest — запрос, который получил fake-сервер.
type recordedRequest struct {
	Method  string
	Command string
	Query   url.Values
	Form    url.Values
}

// fakeRefine — httptest-сервер, имитирующий /command/core/ OpenRefine.
type fakeRefine struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

// newFakeRefine запускает fake-сервер. Ключ handlers — имя команды
// (для export-rows/<file> — "export-rows"). get-csrf-token отвечает
// токеном "tok", если не переопределён.
func newFakeRefine(t *testing.T, handlers map[string]http.HandlerFunc) *fakeRefine {
	t.Helper()

	f := &fakeRefine{handlers: map[string]http.HandlerFunc{
		"get-csrf-token": jsonHandler(`{"token":"tok"}`),
	}}
	for k, v := range handlers {
		f.handlers[k] = v
	}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, commandPrefix) {
			// Страница проекта после редиректа
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
			return
		}

		command := strings.TrimPrefix(r.URL.Path, commandPrefix)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			r.ParseMultipartForm(1 << 20)
		} else {
			r.ParseForm()
		}

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method:  r.Method,
			Command: command,
			Query:   r.URL.Query(),
			Form:    r.PostForm,
		})
		f.mu.Unlock()

		h, ok := f.handlers[metricCommand(command)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.Close)

	return f
}

// last возвращает последний запрос к команде.
func (f *fakeRefine) last(t *testing.T, command string) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if metricCommand(f.requests[i].Command) == command {
			return f.requests[i]
		}
	}
	t.Fatalf("no request to %s", command)
	return recordedRequest{}
}

// count возвращает число запросов к команде.
func (f *fakeRefine) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if metricCommand(r.Command) == command {
			n++
		}
	}
	return n
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

const modelsBody = `{
  "columnModel": {
    "columns": [
      {"name": "email", "cellIndex": 0},
      {"name": "name", "cellIndex": 1},
      {"name": "state", "cellIndex": 3}
    ],
    "keyColumnName": "email"
  },
  "recordModel": {"hasRecords": false}
}`

// decodeFormJSON декодирует JSON из form-поля.
func decodeFormJSON(t *testing.T, form url.Values, key string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(form.Get(key)), out); err != nil {
		t.Fatalf("form field %s is not valid JSON: %v (%q)", key, err, form.Get(key))
	}
}

func jsonUnmarshalString(s string, out any) error {
	return json.Unmarshal([]byte(s), out)
}
