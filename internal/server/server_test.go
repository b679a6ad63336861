package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	cachemem "github.com/alanyoungcy/biathlonbet/internal/cache/memory"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/server/handler"
	"github.com/alanyoungcy/biathlonbet/internal/server/ws"
	"github.com/alanyoungcy/biathlonbet/internal/service"
	"github.com/alanyoungcy/biathlonbet/internal/settlement"
	"github.com/alanyoungcy/biathlonbet/internal/store/memory"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

const hostKey = "host-secret"

type testEnv struct {
	handler http.Handler
	bus     *cachemem.SignalBus
	locks   *cachemem.LockManager
	hub     *ws.Hub
}

func newTestEnv(t *testing.T, cfg Config, checks map[string]handler.HealthCheck) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	captures := memory.NewCaptureStore()
	bus := cachemem.NewSignalBus(100)
	locks := cachemem.NewLockManager()
	limiter := cachemem.NewRateLimiter()
	events := service.NewEventPublisher(bus, nil, logger)

	vcfg := vision.DefaultConfig()
	vcfg.BlurSigma = 0

	rounds := service.NewRoundService(store, store, store, events, decimal.NewFromInt(2), logger)
	wagers := service.NewWagerService(store, store, limiter, events, service.WagerConfig{}, logger)
	referee := service.NewRefereeService(store, captures, vision.NewReferee(vcfg), nil, nil, events, logger)
	settler := service.NewSettlementService(settlement.NewEngine(store, logger), store, locks, store,
		events, nil, time.Second, logger)

	hub := ws.NewHub(bus, logger, ws.Config{Mode: "server"})
	if cfg.APIKey == "" {
		cfg.APIKey = hostKey
	}
	srv := NewServer(cfg, Handlers{
		Health:   handler.NewHealthHandler(checks, logger),
		Status:   handler.NewStatusHandler("server", time.Now(), rounds, logger),
		Rounds:   handler.NewRoundHandler(rounds, logger),
		Wagers:   handler.NewWagerHandler(wagers, logger),
		Captures: handler.NewCaptureHandler(referee, logger),
		Settle:   handler.NewSettleHandler(settler, logger),
		Audit:    handler.NewAuditHandler(store, logger),
	}, hub, limiter, logger)

	return &testEnv{handler: srv.Handler(), bus: bus, locks: locks, hub: hub}
}

type call struct {
	method, path string
	body         string
	host         bool
	contentType  string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	} else if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.host {
		req.Header.Set("Authorization", "Bearer "+hostKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
}

func boardPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			d2 := (x-100)*(x-100) + (y-100)*(y-100)
			c := color.RGBA{255, 255, 255, 255}
			switch {
			case x >= 90 && x < 110 && y >= 90 && y < 110:
				c = color.RGBA{0, 0, 0, 255}
			case d2 <= 30*30:
				c = color.RGBA{0, 200, 0, 255}
			case d2 <= 60*60:
				c = color.RGBA{220, 0, 0, 255}
			case d2 <= 90*90:
				c = color.RGBA{0, 0, 220, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{}, map[string]handler.HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rec := env.do(t, call{method: http.MethodGet, path: "/api/health"})
	expect(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["status"]; got != "ok" {
		t.Errorf("status = %v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	env = newTestEnv(t, Config{}, map[string]handler.HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = env.do(t, call{method: http.MethodGet, path: "/api/health"})
	expect(t, rec, http.StatusServiceUnavailable)
}

func TestHostRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds"}), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodPost, "/api/rounds", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expect(t, rec, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodPost, "/api/rounds", nil)
	req.Header.Set("X-API-Key", hostKey)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expect(t, rec, http.StatusCreated)

	// Bettor routes stay public.
	expect(t, env.do(t, call{method: http.MethodGet, path: "/api/rounds/active"}), http.StatusOK)
}

func TestRoundFlow(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/rounds", body: `{"payout":"2.5"}`, host: true})
	expect(t, rec, http.StatusCreated)
	round := decode[domain.Round](t, rec)
	base := "/api/rounds/" + round.ID

	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds", host: true}), http.StatusConflict)
	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds", body: `{"payout":"0.5"}`, host: true}), http.StatusBadRequest)

	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/wagers", body: `{"bettor":"alice","stake":"10","zone":"GREEN"}`}), http.StatusCreated)
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/wagers", body: `{"bettor":"bob","stake":4,"zone":"red"}`}), http.StatusCreated)
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/wagers", body: `{"bettor":"carol","stake":"1","zone":"CENTER"}`}), http.StatusBadRequest)
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/wagers", body: `{"bettor":"carol","stake":"1","zone":"BLUE","extra":1}`}), http.StatusBadRequest)

	// Captures and settlement need a LIVE round.
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/settle", body: `{"verdict":"GREEN"}`, host: true}), http.StatusConflict)

	rec = env.do(t, call{method: http.MethodPost, path: base + "/close", host: true})
	expect(t, rec, http.StatusOK)
	if got := decode[domain.Round](t, rec).Status; got != domain.RoundStatusLive {
		t.Fatalf("status after close = %s", got)
	}
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/wagers", body: `{"bettor":"dave","stake":"1","zone":"BLUE"}`}), http.StatusConflict)

	rec = env.do(t, call{method: http.MethodPost, path: base + "/captures", body: string(boardPNG(t)), contentType: "image/png", host: true})
	expect(t, rec, http.StatusCreated)
	if got := decode[service.CaptureResult](t, rec).Verdict; got != domain.VerdictFor(domain.ZoneGreen) {
		t.Errorf("capture verdict = %s, want GREEN", got)
	}
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/captures", body: "garbage", contentType: "image/png", host: true}), http.StatusBadRequest)

	rec = env.do(t, call{method: http.MethodGet, path: base + "/captures", host: true})
	expect(t, rec, http.StatusOK)
	if n := len(decode[struct{ Captures []domain.Capture }](t, rec).Captures); n != 1 {
		t.Errorf("captures = %d, want 1", n)
	}
	expect(t, env.do(t, call{method: http.MethodGet, path: base + "/captures/x/image", host: true}), http.StatusNotFound)

	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/settle", body: `{"verdict":"NO_MARKER"}`, host: true}), http.StatusBadRequest)
	expect(t, env.do(t, call{method: http.MethodPost, path: base + "/settle", body: `{}`, host: true}), http.StatusBadRequest)

	rec = env.do(t, call{method: http.MethodPost, path: base + "/settle", body: `{"verdict":"GREEN"}`, host: true})
	expect(t, rec, http.StatusOK)
	res := decode[settlement.Result](t, rec)
	if res.AlreadySettled || res.Winners != 1 || !res.TotalPaid.Equal(decimal.NewFromInt(25)) {
		t.Errorf("settle result = %+v", res)
	}

	rec = env.do(t, call{method: http.MethodPost, path: base + "/settle", body: `{"verdict":"RED"}`, host: true})
	expect(t, rec, http.StatusOK)
	if again := decode[settlement.Result](t, rec); !again.AlreadySettled || again.Round.Winner != domain.VerdictFor(domain.ZoneGreen) {
		t.Errorf("second settle = %+v", again)
	}

	rec = env.do(t, call{method: http.MethodGet, path: "/api/rounds/latest"})
	expect(t, rec, http.StatusOK)
	latest := decode[service.RoundResults](t, rec)
	if latest.Round.ID != round.ID || len(latest.Wagers) != 2 {
		t.Errorf("latest = %+v", latest)
	}
	for _, w := range latest.Wagers {
		if w.Bettor == "alice" && (w.Status != domain.WagerStatusWon || !w.Winnings.Equal(decimal.NewFromInt(25))) {
			t.Errorf("alice = %+v", w)
		}
		if w.Bettor == "bob" && w.Status != domain.WagerStatusLost {
			t.Errorf("bob = %+v", w)
		}
	}

	expect(t, env.do(t, call{method: http.MethodGet, path: "/api/rounds/active"}), http.StatusNotFound)
	expect(t, env.do(t, call{method: http.MethodGet, path: "/api/rounds/nope"}), http.StatusNotFound)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/audit?limit=2", host: true})
	expect(t, rec, http.StatusOK)
	if n := len(decode[struct{ Entries []domain.AuditEntry }](t, rec).Entries); n != 2 {
		t.Errorf("audit entries = %d, want 2", n)
	}
}

func TestMultipartCaptureAndLockedSettle(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	rec := env.do(t, call{method: http.MethodPost, path: "/api/rounds", host: true})
	expect(t, rec, http.StatusCreated)
	id := decode[domain.Round](t, rec).ID
	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds/" + id + "/close", host: true}), http.StatusOK)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "board.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(boardPNG(t))
	mw.Close()

	rec = env.do(t, call{method: http.MethodPost, path: "/api/rounds/" + id + "/captures", body: buf.String(), contentType: mw.FormDataContentType(), host: true})
	expect(t, rec, http.StatusCreated)

	unlock, err := env.locks.Acquire(context.Background(), domain.SettleLockKey(id), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds/" + id + "/settle", body: `{"verdict":"NONE"}`, host: true}), http.StatusLocked)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	rec := env.do(t, call{method: http.MethodGet, path: "/api/status"})
	expect(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["mode"] != "server" || got["active_round"] != nil {
		t.Errorf("status = %v", got)
	}

	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds", host: true}), http.StatusCreated)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/status"})
	if got := decode[map[string]any](t, rec); got["active_round"] == nil {
		t.Errorf("status = %v, want an active round", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/rounds", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expect(t, rec, http.StatusNoContent)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow origin for unknown origin = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: 2, RateWindow: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		expect(t, env.do(t, call{method: http.MethodGet, path: "/api/health"}), http.StatusOK)
	}
	rec := env.do(t, call{method: http.MethodGet, path: "/api/health"})
	expect(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestWebSocketRelaysEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if hello.Type != "status" {
		t.Fatalf("first message type = %q", hello.Type)
	}

	// A round created over HTTP reaches the socket.
	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds", host: true}), http.StatusCreated)

	var ev domain.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != domain.EventRoundCreated {
		t.Errorf("event type = %s, want round_created", ev.Type)
	}

	// Replay returns the same event from the durable stream.
	if err := conn.WriteJSON(map[string]string{"action": "replay", "since": "0"}); err != nil {
		t.Fatal(err)
	}
	var replayed domain.Event
	if err := conn.ReadJSON(&replayed); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replayed.Type != domain.EventRoundCreated || replayed.RoundID != ev.RoundID {
		t.Errorf("replayed = %+v", replayed)
	}
}

func TestAuditListing(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/rounds", host: true})
	expect(t, rec, http.StatusCreated)
	round := decode[domain.Round](t, rec)
	expect(t, env.do(t, call{method: http.MethodPost, path: "/api/rounds/" + round.ID + "/close", host: true}), http.StatusOK)

	expect(t, env.do(t, call{method: http.MethodGet, path: "/api/audit"}), http.StatusUnauthorized)

	type page struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	rec = env.do(t, call{method: http.MethodGet, path: "/api/audit?limit=1", host: true})
	expect(t, rec, http.StatusOK)
	got := decode[page](t, rec)
	if len(got.Entries) != 1 || got.Entries[0].Event != domain.EventBettingClosed {
		t.Fatalf("entries = %+v, want the betting_closed entry only", got.Entries)
	}

	rec = env.do(t, call{method: http.MethodGet, path: "/api/audit?round=" + round.ID, host: true})
	expect(t, rec, http.StatusOK)
	got = decode[page](t, rec)
	if len(got.Entries) != 2 {
		t.Fatalf("entries for round %s = %+v, want created and closed", round.ID, got.Entries)
	}
	for _, e := range got.Entries {
		if e.RoundID != round.ID {
			t.Errorf("entry %+v belongs to another round", e)
		}
	}
	rec = env.do(t, call{method: http.MethodGet, path: "/api/audit?round=elsewhere", host: true})
	expect(t, rec, http.StatusOK)
	if got := decode[page](t, rec); len(got.Entries) != 0 {
		t.Errorf("entries for unknown round = %+v, want none", got.Entries)
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/audit?since=" + future, host: true})
	expect(t, rec, http.StatusOK)
	if got := decode[page](t, rec); len(got.Entries) != 0 {
		t.Errorf("entries since %s = %d, want 0", future, len(got.Entries))
	}
}
