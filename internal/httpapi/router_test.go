package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"schedbot/internal/dispatch"
	"schedbot/internal/job"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

var newYear = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, run func(context.Context) (dispatch.Report, error)) *httptest.Server {
	t.Helper()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return newYear }})
	return newServer(t, st, st, run)
}

func newServer(t *testing.T, st *storage.Memory, stats view.StatsStore, run func(context.Context) (dispatch.Report, error)) *httptest.Server {
	t.Helper()
	clock := func() time.Time { return newYear }
	h := schedule.NewHandler(st, schedule.Options{UTCOffsetMinutes: -240, Now: clock}, logx.Nop())
	srv := httptest.NewServer(NewRouter(Deps{
		Scheduler:   schedule.NewAssistant(h, st, time.Hour, logx.Nop()),
		Pager:       view.NewService(st, stats, view.Options{UTCOffsetMinutes: -240, Now: clock}, logx.Nop()),
		RunDispatch: run,
		Health:      func() any { return map[string]any{"status": "ok", "jobs": 0} },
		Log:         logx.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("content-type=%q", resp.Header.Get("Content-Type"))
	}
}

func TestCommandAndListing(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	cmd := `{"owner_id":"42","text":"/schedule +1234567890 $2024-12-25 10:30$ $Feliz Navidad$"}`
	resp, body := post(t, srv.URL+"/v1/commands", cmd)
	if resp.StatusCode != http.StatusCreated || body["kind"] != string(schedule.OutcomeCreated) {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	j, _ := body["job"].(map[string]any)
	if j["recipient"] != "+1234567890" || j["status"] != "PENDING" {
		t.Fatalf("job=%v", j)
	}

	resp, body = post(t, srv.URL+"/v1/commands", `{"owner_id":"42","text":"/schedule +1234567890 $2020-01-01 10:00$ $tarde$"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || body["kind"] != string(schedule.OutcomePastDateTime) {
		t.Fatalf("past: status=%d body=%v", resp.StatusCode, body)
	}

	resp, body = get(t, srv.URL+"/v1/owners/42/messages")
	if resp.StatusCode != http.StatusOK || body["total"] != float64(1) || body["has_more"] != false {
		t.Fatalf("list: status=%d body=%v", resp.StatusCode, body)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 || !strings.Contains(items[0].(map[string]any)["scheduled_local"].(string), "25 de diciembre") {
		t.Fatalf("items=%v", items)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	cases := []struct {
		name   string
		do     func() *http.Response
		status int
	}{
		{"bad json", func() *http.Response { r, _ := post(t, srv.URL+"/v1/commands", "{"); return r }, http.StatusBadRequest},
		{"missing owner", func() *http.Response { r, _ := post(t, srv.URL+"/v1/commands", `{"text":"x"}`); return r }, http.StatusBadRequest},
		{"bad offset", func() *http.Response { r, _ := get(t, srv.URL+"/v1/owners/1/messages?offset=-1"); return r }, http.StatusBadRequest},
		{"bad limit", func() *http.Response { r, _ := get(t, srv.URL+"/v1/owners/1/messages?limit=500"); return r }, http.StatusBadRequest},
		{"dispatch disabled", func() *http.Response { r, _ := post(t, srv.URL+"/v1/dispatch/run", ""); return r }, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := tc.do().StatusCode; got != tc.status {
			t.Fatalf("%s: status=%d want %d", tc.name, got, tc.status)
		}
	}
}

func TestDispatchRun(t *testing.T) {
	t.Parallel()
	var busy atomic.Bool
	srv := newTestServer(t, func(context.Context) (dispatch.Report, error) {
		if busy.Load() {
			return dispatch.Report{}, ErrDispatchBusy
		}
		return dispatch.Report{Fetched: 2, Sent: 1, Failed: 1, Errors: []error{errors.New("db")}}, nil
	})
	resp, body := post(t, srv.URL+"/v1/dispatch/run", "")
	if resp.StatusCode != http.StatusOK || body["sent"] != float64(1) || body["failed"] != float64(1) {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	busy.Store(true)
	if resp, _ := post(t, srv.URL+"/v1/dispatch/run", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy status=%d", resp.StatusCode)
	}
}

func TestProfilerMount(t *testing.T) {
	t.Parallel()
	for _, on := range []bool{false, true} {
		h := NewRouter(Deps{Profiler: on, Log: logx.Nop()})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		want := http.StatusNotFound
		if on {
			want = http.StatusOK
		}
		if rec.Code != want {
			t.Fatalf("profiler=%v status=%d want %d", on, rec.Code, want)
		}
	}
}

func seedPending(t *testing.T, st *storage.Memory, owner string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := st.Create(context.Background(), job.NewJob{
			OwnerID:     owner,
			Recipient:   "+1234567890",
			Content:     "hola",
			ScheduledAt: newYear.Add(time.Duration(i+1) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
}

func TestListingRecordsViewStats(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return newYear }})
	seedPending(t, st, "42", 3)
	srv := newServer(t, st, st, nil)

	if resp, body := get(t, srv.URL+"/v1/owners/42/messages?limit=2"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first page: status=%d body=%v", resp.StatusCode, body)
	}
	resp, body := get(t, srv.URL+"/v1/owners/42/messages?offset=2&limit=2")
	if resp.StatusCode != http.StatusOK || body["has_more"] != false {
		t.Fatalf("second page: status=%d body=%v", resp.StatusCode, body)
	}

	vs, err := st.GetViewStats(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetViewStats: %v", err)
	}
	if vs.TotalViews != 2 || vs.LastOffset != 2 || !vs.LastViewedAt.Equal(newYear) {
		t.Fatalf("stats=%+v", vs)
	}
}

type failingStats struct{}

func (failingStats) GetViewStats(context.Context, string) (job.ViewStats, error) {
	return job.ViewStats{}, errors.New("stats down")
}

func (failingStats) RecordView(context.Context, string, int, time.Time) (job.ViewStats, error) {
	return job.ViewStats{}, errors.New("stats down")
}

func TestListingSurvivesStatsFailure(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory(storage.Config{Now: func() time.Time { return newYear }})
	seedPending(t, st, "42", 1)
	srv := newServer(t, st, failingStats{}, nil)

	resp, body := get(t, srv.URL+"/v1/owners/42/messages")
	if resp.StatusCode != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}
