package refine

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Refinery/internal/telemetry"
)

func TestNewServer_URL(t *testing.T) {
	s := NewServer("http://refine.example/")
	if s.URL() != "http://refine.example" {
		t.Errorf("expected trailing slash stripped, got %s", s.URL())
	}

	t.Setenv("OPENREFINE_HOST", "")
	t.Setenv("GOOGLE_REFINE_HOST", "")
	t.Setenv("OPENREFINE_PORT", "")
	t.Setenv("GOOGLE_REFINE_PORT", "")
	if got := NewServer("").URL(); got != "http://127.0.0.1:3333" {
		t.Errorf("expected default URL, got %s", got)
	}

	t.Setenv("GOOGLE_REFINE_HOST", "legacy")
	if got := NewServer("").URL(); got != "http://legacy:3333" {
		t.Errorf("expected legacy host, got %s", got)
	}

	t.Setenv("OPENREFINE_HOST", "refine")
	t.Setenv("OPENREFINE_PORT", "4444")
	if got := NewServer("").URL(); got != "http://refine:4444" {
		t.Errorf("expected env URL, got %s", got)
	}
}

func TestServer_Version(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-version": jsonHandler(`{"revision":"r1","version":"3.7","full_version":"3.7 [r1]","full_name":"OpenRefine 3.7 [r1]"}`),
	})

	v, err := NewServer(f.URL).Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Version != "3.7" || v.Revision != "r1" || v.FullVersion != "3.7 [r1]" || v.FullName == "" {
		t.Errorf("unexpected version: %+v", v)
	}
	if f.last(t, "get-version").Method != http.MethodGet {
		t.Error("get-version should be GET")
	}
}

func TestServer_Open_ProjectPlacement(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-models":     jsonHandler(`{}`),
		"text-transform": jsonHandler(`{"code":"ok"}`),
		"delete-project": jsonHandler(`{"code":"ok"}`),
	})
	s := NewServer(f.URL)
	ctx := context.Background()

	// Без тела — GET, проект в query
	if err := s.OpenJSON(ctx, "get-models", Request{ProjectID: "42"}, nil); err != nil {
		t.Fatal(err)
	}
	req := f.last(t, "get-models")
	if req.Method != http.MethodGet || req.Query.Get("project") != "42" {
		t.Errorf("expected GET with project in query, got %s %v", req.Method, req.Query)
	}

	// С телом — POST, проект в теле, CSRF в query
	data := url.Values{"columnName": {"a"}}
	if err := s.OpenJSON(ctx, "text-transform", Request{Data: data, ProjectID: "42"}, nil); err != nil {
		t.Fatal(err)
	}
	req = f.last(t, "text-transform")
	if req.Method != http.MethodPost || req.Form.Get("project") != "42" || req.Form.Get("columnName") != "a" {
		t.Errorf("expected POST with project in body, got %s %v", req.Method, req.Form)
	}
	if req.Query.Get("csrf_token") != "tok" {
		t.Errorf("expected csrf token, got %v", req.Query)
	}
	if data.Has("project") {
		t.Error("caller's data must not be modified")
	}

	// delete — проект всегда в теле
	if err := s.OpenJSON(ctx, "delete-project", Request{ProjectID: "42"}, nil); err != nil {
		t.Fatal(err)
	}
	req = f.last(t, "delete-project")
	if req.Method != http.MethodPost || req.Form.Get("project") != "42" {
		t.Errorf("expected delete as POST with project in body, got %s %v", req.Method, req.Form)
	}
}

func TestServer_OpenJSON_Errors(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"bad-code":  jsonHandler(`{"code":"error","message":"No such project"}`),
		"bad-stack": jsonHandler(`{"code":"error","stack":"java.lang.Exception"}`),
		"pending":   jsonHandler(`{"code":"pending"}`),
		"not-json":  func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("<html>")) },
		"boom":      func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
	})
	s := NewServer(f.URL)
	ctx := context.Background()

	err := s.OpenJSON(ctx, "bad-code", Request{}, nil)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if se.Code != "error" || se.Message != "No such project" {
		t.Errorf("unexpected server error: %+v", se)
	}
	if err.Error() != "server error: No such project" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = s.OpenJSON(ctx, "bad-stack", Request{}, nil)
	if !errors.As(err, &se) || se.Message != "java.lang.Exception" {
		t.Errorf("expected stack as message, got %v", err)
	}

	if err := s.OpenJSON(ctx, "pending", Request{}, nil); err != nil {
		t.Errorf("pending is not an error: %v", err)
	}

	if err := s.OpenJSON(ctx, "not-json", Request{}, nil); !errors.Is(err, ErrExpectedJSON) {
		t.Errorf("expected ErrExpectedJSON, got %v", err)
	}

	err = s.OpenJSON(ctx, "boom", Request{Data: url.Values{"x": {"1"}}}, nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.StatusCode != http.StatusInternalServerError || he.Data != "x=1" {
		t.Errorf("unexpected HTTP error: %+v", he)
	}
}

func TestServer_GzipResponse(t *testing.T) {
	var acceptEncoding string
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-version": func(w http.ResponseWriter, r *http.Request) {
			acceptEncoding = r.Header.Get("Accept-Encoding")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "gzip")
			zw := gzip.NewWriter(w)
			zw.Write([]byte(`{"version":"3.7.2","full_name":"OpenRefine 3.7.2"}`))
			zw.Close()
		},
	})

	// Клиент без прозрачной распаковки транспорта.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	v, err := NewServer(f.URL, WithHTTPClient(client)).Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != "3.7.2" || v.FullName != "OpenRefine 3.7.2" {
		t.Errorf("unexpected version: %+v", v)
	}
	if acceptEncoding != "gzip" {
		t.Errorf("expected Accept-Encoding gzip, got %q", acceptEncoding)
	}
}

func TestServer_CSRFUnavailable(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-csrf-token": http.NotFound,
		"fill-down":      jsonHandler(`{"code":"ok"}`),
	})

	err := NewServer(f.URL).OpenJSON(context.Background(), "fill-down",
		Request{Data: url.Values{"columnName": {"a"}}}, nil)
	if err != nil {
		t.Fatalf("POST should succeed without token: %v", err)
	}
	if f.last(t, "fill-down").Query.Has("csrf_token") {
		t.Error("no token expected")
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-version": jsonHandler(`{"version":"3.7"}`),
	})
	m := telemetry.NewMetrics()

	s := NewServer(f.URL, WithMetrics(m))
	if _, err := s.Version(context.Background()); err != nil {
		t.Fatal(err)
	}

	n, err := testutil.GatherAndCount(m.Registry, "refinery_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected one request series, got %d", n)
	}
}
