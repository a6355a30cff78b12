// Package httpapi is the operator HTTP surface: health, scheduling without a
// chat client, listing and on-demand dispatch.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"schedbot/internal/datetime"
	"schedbot/internal/dispatch"
	"schedbot/internal/job"
	"schedbot/internal/schedule"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

type Scheduler interface {
	Handle(ctx context.Context, req schedule.Request) schedule.Outcome
}

type Pager interface {
	Page(ctx context.Context, owner string, offset, size int) (view.Page, error)
}

// ErrDispatchBusy is returned by RunDispatch when a tick is already running.
var ErrDispatchBusy = errors.New("dispatch already running")

type Deps struct {
	Scheduler   Scheduler
	Pager       Pager
	RunDispatch func(ctx context.Context) (dispatch.Report, error)
	// Health returns a JSON-encodable status document.
	Health func() any

	ZoneLabel   string
	PageSize    int
	CORSOrigins []string
	// Profiler mounts net/http/pprof under /debug/pprof.
	Profiler bool
	Log      logx.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.PageSize <= 0 {
		d.PageSize = view.DefaultPageSize
	}
	a := &api{d: d, log: d.Log.With(logx.Component("httpapi"))}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(a.requestLog)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", a.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands", a.command)
		r.Get("/owners/{owner}/messages", a.messages)
		r.Post("/dispatch/run", a.dispatchRun)
	})
	if d.Profiler {
		r.Mount("/debug", chimw.Profiler())
	}
	return r
}

type api struct {
	d   Deps
	log logx.Logger
}

func (a *api) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			logx.String("rid", chimw.GetReqID(r.Context())),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	var body any = map[string]string{"status": "ok"}
	if a.d.Health != nil {
		body = a.d.Health()
	}
	writeJSON(w, http.StatusOK, body)
}

type jobDTO struct {
	ID             string     `json:"id"`
	Recipient      string     `json:"recipient"`
	Content        string     `json:"content"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	Local          string     `json:"scheduled_local"`
	DateTimeInput  string     `json:"datetime_input,omitempty"`
	Status         job.Status `json:"status"`
	Attempts       int        `json:"attempts,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RecipientInput string     `json:"recipient_input,omitempty"`
}

func toDTO(j job.Job) jobDTO {
	return jobDTO{
		ID:             j.ID,
		Recipient:      j.Recipient,
		RecipientInput: j.RecipientInput,
		Content:        j.Content,
		ScheduledAt:    j.ScheduledAt,
		Local:          datetime.FormatLocal(j.ScheduledAt, j.UTCOffsetMinutes),
		DateTimeInput:  j.DateTimeInput,
		Status:         j.Status,
		Attempts:       j.Attempts,
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt,
	}
}

type commandReq struct {
	OwnerID string `json:"owner_id"`
	Text    string `json:"text"`
}

type commandResp struct {
	Kind  schedule.OutcomeKind `json:"kind"`
	Stage schedule.Stage       `json:"stage"`
	Reply string               `json:"reply"`
	Job   *jobDTO              `json:"job,omitempty"`
}

func (a *api) command(w http.ResponseWriter, r *http.Request) {
	var req commandReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	o := a.d.Scheduler.Handle(r.Context(), schedule.Request{OwnerID: req.OwnerID, Text: req.Text})
	resp := commandResp{
		Kind:  o.Kind,
		Stage: o.Stage,
		Reply: schedule.Catalog{ZoneLabel: a.d.ZoneLabel}.Reply(o),
	}
	if o.Job != nil {
		dto := toDTO(*o.Job)
		resp.Job = &dto
	}

	status := http.StatusOK
	switch {
	case o.Kind == schedule.OutcomeCreated:
		status = http.StatusCreated
	case o.Kind == schedule.OutcomeInternal:
		a.log.Error("command failed", logx.String("owner", req.OwnerID), logx.Err(o.Err))
		status = http.StatusInternalServerError
	case o.Kind == schedule.OutcomeLimitReached:
		status = http.StatusConflict
	case strings.HasPrefix(string(o.Kind), "ERROR_"):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

type pageResp struct {
	Owner     string   `json:"owner"`
	Total     int      `json:"total"`
	Offset    int      `json:"offset"`
	HasMore   bool     `json:"has_more"`
	Remaining int      `json:"remaining"`
	Items     []jobDTO `json:"items"`
}

func (a *api) messages(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	offset, err := intQuery(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := intQuery(r, "limit", a.d.PageSize)
	if err != nil || limit <= 0 || limit > job.MaxBatchSize {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	p, err := a.d.Pager.Page(r.Context(), owner, offset, limit)
	if err != nil {
		a.log.Error("list messages failed", logx.String("owner", owner), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	resp := pageResp{
		Owner:     owner,
		Total:     p.Total,
		Offset:    p.Offset,
		HasMore:   p.HasMore,
		Remaining: p.Remaining(),
		Items:     make([]jobDTO, 0, len(p.Items)),
	}
	for _, j := range p.Items {
		resp.Items = append(resp.Items, toDTO(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

type dispatchResp struct {
	Fetched int      `json:"fetched"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped bool     `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

func (a *api) dispatchRun(w http.ResponseWriter, r *http.Request) {
	if a.d.RunDispatch == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatch disabled")
		return
	}
	rep, err := a.d.RunDispatch(r.Context())
	if errors.Is(err, ErrDispatchBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		a.log.Error("dispatch run failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}
	resp := dispatchResp{Fetched: rep.Fetched, Sent: rep.Sent, Failed: rep.Failed, Skipped: rep.Skipped}
	for _, e := range rep.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}
