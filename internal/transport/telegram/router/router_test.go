package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	"schedbot/internal/view"
	"schedbot/pkg/logx"
)

var newYear = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	mu      sync.Mutex
	replies []string
	menu    []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func newTestRouter(t *testing.T, cfg Config) (*Router, *fakeAdapter, *storage.Memory) {
	t.Helper()
	clock := func() time.Time { return newYear }
	st := storage.NewMemory(storage.Config{Now: clock})
	h := schedule.NewHandler(st, schedule.Options{UTCOffsetMinutes: -240, Now: clock}, logx.Nop())
	a := schedule.NewAssistant(h, st, time.Hour, logx.Nop())
	v := view.NewService(st, st, view.Options{UTCOffsetMinutes: -240, Now: clock}, logx.Nop())
	ad := &fakeAdapter{}
	return New(cfg, ad, a, v, logx.Nop()), ad, st
}

func message(from int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: from, FromID: from, Text: text, Time: newYear}}
}

func handle(t *testing.T, r *Router, text string) *Request {
	t.Helper()
	req := r.newRequest(message(7, text))
	if err := r.Handle(context.Background(), req); err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
	return req
}

func TestHandleRoutes(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t, Config{})

	if req := handle(t, r, "/help"); req.Route != "help" || !strings.Contains(ad.last(), "Mensajes programados") {
		t.Fatalf("help route=%s reply=%q", req.Route, ad.last())
	}

	req := handle(t, r, "/schedule +1234567890 $2024-12-25 10:30$ $Feliz Navidad$")
	if req.Route != "schedule" || req.Outcome != string(schedule.OutcomeCreated) {
		t.Fatalf("schedule route=%s outcome=%s reply=%q", req.Route, req.Outcome, ad.last())
	}
	if n, _ := st.CountPending(context.Background(), "7"); n != 1 {
		t.Fatalf("pending=%d", n)
	}

	if req := handle(t, r, "qué mensajes tengo?"); req.Route != "view" || !strings.Contains(ad.last(), "Feliz Navidad") {
		t.Fatalf("view route=%s reply=%q", req.Route, ad.last())
	}

	if req := handle(t, r, "/foo"); req.Route != "unknown" || ad.last() != unknownCommandText {
		t.Fatalf("unknown route=%s reply=%q", req.Route, ad.last())
	}

	req = handle(t, r, "hola que tal")
	want := schedule.Catalog{ZoneLabel: schedule.DefaultZoneLabel}.Reply(schedule.Outcome{Kind: schedule.OutcomeNotUnderstood})
	if req.Route != "natural" || ad.last() != want {
		t.Fatalf("natural route=%s reply=%q", req.Route, ad.last())
	}
}

func TestHandleNaturalFollowUp(t *testing.T) {
	t.Parallel()
	r, _, st := newTestRouter(t, Config{})
	if req := handle(t, r, "mañana 10:00 llamar al doctor"); req.Outcome != string(schedule.OutcomeNeedPhone) {
		t.Fatalf("outcome=%s", req.Outcome)
	}
	if req := handle(t, r, "+56912345678"); req.Outcome != string(schedule.OutcomeCreated) {
		t.Fatalf("follow-up outcome=%s", req.Outcome)
	}
	if n, _ := st.CountPending(context.Background(), "7"); n != 1 {
		t.Fatalf("pending=%d", n)
	}
}

func TestDispatchLoopAllowlist(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t, Config{AllowedUserIDs: []int64{7}, Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	updates <- message(99, "/help")
	updates <- message(7, "/help")

	deadline := time.Now().Add(3 * time.Second)
	for ad.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("loop: %v", err)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.replies) != 2 {
		t.Fatalf("replies=%q", ad.replies)
	}
	var denied, helped bool
	for _, rep := range ad.replies {
		denied = denied || rep == "No autorizado."
		helped = helped || strings.Contains(rep, "Mensajes programados")
	}
	if !denied || !helped {
		t.Fatalf("replies=%q", ad.replies)
	}
}

func TestPublishMenu(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t, Config{Keyword: "/Agendar-Msg"})
	if err := r.PublishMenu(context.Background()); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(ad.menu) != 3 || ad.menu[0].Command != "agendar_msg" {
		t.Fatalf("menu=%+v", ad.menu)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/schedule":   "schedule",
		"ver-mensaje": "ver_mensaje",
		"9lives":      "cmd_9lives",
		"¿?":          "",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}
