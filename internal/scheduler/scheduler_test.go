package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 2, 59, 30, 0, time.UTC)

func TestValidateCronExpr(t *testing.T) {
	for _, ok := range []string{"0 3 * * *", "*/5 * * * *", "@daily", "@every 1h"} {
		assert.NoError(t, ValidateCronExpr(ok), ok)
	}
	for _, bad := range []string{"", "61 * * * *", "* * * *", "0 0 3 * * *"} {
		assert.Error(t, ValidateCronExpr(bad), bad)
	}
}

func TestNextRun(t *testing.T) {
	next, err := NextRun("0 3 * * *", base, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), next)

	moscow := time.FixedZone("MSK", 3*3600)
	next, err = NextRun("0 3 * * *", base, moscow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), next, "03:00 MSK is 00:00 UTC")
}

func TestNew_Errors(t *testing.T) {
	run := func(context.Context) error { return nil }

	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Entries: []Entry{{Name: "a", Spec: "bad", Run: run}}})
	assert.Error(t, err)

	_, err = New(Config{Entries: []Entry{
		{Name: "a", Spec: "@daily", Run: run},
		{Name: "a", Spec: "@daily", Run: run},
	}})
	assert.ErrorContains(t, err, "duplicate")
}

func TestTick(t *testing.T) {
	var calls []string
	entries := []Entry{
		{Name: "clean", Spec: "0 3 * * *", Run: func(context.Context) error {
			calls = append(calls, "clean")
			return errors.New("server down")
		}},
		{Name: "hourly", Spec: "0 * * * *", Run: func(context.Context) error {
			calls = append(calls, "hourly")
			return nil
		}},
		{Name: "later", Spec: "0 12 * * *", Run: func(context.Context) error {
			calls = append(calls, "later")
			return nil
		}},
	}

	s, err := New(Config{Entries: entries, Now: func() time.Time { return base }})
	require.NoError(t, err)

	ran, err := s.Tick(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, ran, "nothing due yet")

	at3 := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	ran, err = s.Tick(context.Background(), at3)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)
	assert.Equal(t, []string{"clean", "hourly"}, calls, "a failing job does not stop the others")

	statuses := s.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "hourly", statuses[0].Name)
	assert.Equal(t, at3.Add(time.Hour), statuses[0].NextRun)

	var clean Status
	for _, st := range statuses {
		if st.Name == "clean" {
			clean = st
		}
	}
	assert.Equal(t, "server down", clean.LastErr)
	assert.Equal(t, 1, clean.Runs)
	assert.Equal(t, at3.Add(24*time.Hour), clean.NextRun)
}

type fakeLocker struct{ leader bool }

func (l *fakeLocker) TryLock(context.Context) (bool, error) { return l.leader, nil }

func TestTick_FollowerSkips(t *testing.T) {
	ran := 0
	locker := &fakeLocker{}
	s, err := New(Config{
		Entries: []Entry{{Name: "x", Spec: "* * * * *", Run: func(context.Context) error { ran++; return nil }}},
		Locker:  locker,
		Now:     func() time.Time { return base },
	})
	require.NoError(t, err)

	later := base.Add(time.Hour)
	n, err := s.Tick(context.Background(), later)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, ran)

	locker.leader = true
	n, err = s.Tick(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(Config{
		Entries:      []Entry{{Name: "x", Spec: "@yearly", Run: func(context.Context) error { return nil }}},
		TickInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestHandler(t *testing.T) {
	s, err := New(Config{
		Entries: []Entry{{Name: "clean", Spec: "0 3 * * *", Run: func(context.Context) error { return nil }}},
		Now:     func() time.Time { return base },
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "refinery_test_total", Help: "test"}))

	srv := httptest.NewServer(Handler(s, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/jobs")
	require.NoError(t, err)
	var statuses []Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	resp.Body.Close()
	require.Len(t, statuses, 1)
	assert.Equal(t, "clean", statuses[0].Name)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "refinery_test_total")
}

func TestRecovery(t *testing.T) {
	h := Chain(Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
