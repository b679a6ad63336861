package service

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	cachemem "github.com/alanyoungcy/biathlonbet/internal/cache/memory"
	"github.com/alanyoungcy/biathlonbet/internal/capture"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/settlement"
	"github.com/alanyoungcy/biathlonbet/internal/store/memory"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Enabled() bool { return true }

func (n *recordingNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	captures []domain.Capture
	reports  []string
	failing  bool
}

func (a *fakeArchiver) ArchiveCapture(_ context.Context, c domain.Capture, png []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return "", errors.New("bucket unavailable")
	}
	if len(png) == 0 {
		return "", errors.New("empty image")
	}
	a.captures = append(a.captures, c)
	return "captures/" + c.RoundID + "/" + c.ID + ".png", nil
}

func (a *fakeArchiver) ArchiveSettlement(_ context.Context, round domain.Round, _ []domain.Wager) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, round.ID)
	return "settlements/" + round.ID + ".jsonl", nil
}

type fakeImages struct {
	objects map[string]string
}

func (f fakeImages) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f fakeImages) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

type harness struct {
	store    *memory.Store
	captures *memory.CaptureStore
	bus      *cachemem.SignalBus
	locks    *cachemem.LockManager
	notifier *recordingNotifier
	archiver *fakeArchiver

	rounds  *RoundService
	wagers  *WagerService
	referee *RefereeService
	settle  *SettlementService
}

func newHarness(t *testing.T, wcfg WagerConfig) *harness {
	t.Helper()
	logger := testLogger()
	h := &harness{
		store:    memory.New(),
		captures: memory.NewCaptureStore(),
		bus:      cachemem.NewSignalBus(100),
		locks:    cachemem.NewLockManager(),
		notifier: &recordingNotifier{},
		archiver: &fakeArchiver{},
	}
	events := NewEventPublisher(h.bus, h.notifier, logger)

	cfg := vision.DefaultConfig()
	cfg.BlurSigma = 0

	h.rounds = NewRoundService(h.store, h.store, h.store, events, decimal.NewFromInt(2), logger)
	h.wagers = NewWagerService(h.store, h.store, cachemem.NewRateLimiter(), events, wcfg, logger)
	h.referee = NewRefereeService(h.store, h.captures, vision.NewReferee(cfg), h.archiver, nil, events, logger)
	h.settle = NewSettlementService(settlement.NewEngine(h.store, logger), h.store, h.locks, h.store,
		events, h.archiver, time.Second, logger)
	return h
}

func (h *harness) eventTypes(t *testing.T) []domain.EventType {
	t.Helper()
	msgs, err := h.bus.StreamRead(context.Background(), domain.EventStream, "0", 0)
	if err != nil {
		t.Fatalf("StreamRead: %v", err)
	}
	out := make([]domain.EventType, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		out = append(out, ev.Type)
	}
	return out
}

func (h *harness) place(t *testing.T, roundID, bettor, stake, zone string) domain.Wager {
	t.Helper()
	w, err := h.wagers.Place(context.Background(), roundID, PlaceWagerRequest{
		Bettor: bettor,
		Stake:  decimal.RequireFromString(stake),
		Zone:   zone,
	})
	if err != nil {
		t.Fatalf("Place(%s, %s, %s): %v", bettor, stake, zone, err)
	}
	return w
}

func TestRoundServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{})

	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if round.Status != domain.RoundStatusOpen || !round.Payout.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("round = %+v", round)
	}
	if len(round.ID) != 8 {
		t.Errorf("round id %q should be 8 characters", round.ID)
	}

	if _, err := h.rounds.Create(ctx, nil); !errors.Is(err, domain.ErrActiveRoundExists) {
		t.Fatalf("second Create err = %v, want ErrActiveRoundExists", err)
	}

	h.place(t, round.ID, "alice", "10", "green")

	active, err := h.rounds.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.ID != round.ID || active.TotalWagers != 1 {
		t.Errorf("active = %+v", active)
	}

	live, err := h.rounds.CloseBetting(ctx, round.ID)
	if err != nil {
		t.Fatalf("CloseBetting: %v", err)
	}
	if live.Status != domain.RoundStatusLive || live.ClosedAt == nil {
		t.Errorf("live = %+v", live)
	}
	if _, err := h.rounds.CloseBetting(ctx, round.ID); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Errorf("second CloseBetting err = %v, want ErrRoundNotOpen", err)
	}

	if _, err := h.rounds.Latest(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Latest before settlement err = %v, want ErrNotFound", err)
	}

	want := []domain.EventType{domain.EventRoundCreated, domain.EventWagerPlaced, domain.EventBettingClosed}
	got := h.eventTypes(t)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if len(h.notifier.events) != 3 {
		t.Errorf("notifier saw %d events, want 3", len(h.notifier.events))
	}
}

func TestRoundServiceRejectsBadPayout(t *testing.T) {
	h := newHarness(t, WagerConfig{})
	for _, p := range []string{"0.5", "0", "-2", "2.12345"} {
		payout := decimal.RequireFromString(p)
		if _, err := h.rounds.Create(context.Background(), &payout); !errors.Is(err, domain.ErrInvalidPayout) {
			t.Errorf("Create(%s) err = %v, want ErrInvalidPayout", p, err)
		}
	}
	payout := decimal.RequireFromString("1.5")
	round, err := h.rounds.Create(context.Background(), &payout)
	if err != nil {
		t.Fatalf("Create(1.5): %v", err)
	}
	if !round.Payout.Equal(payout) {
		t.Errorf("payout = %s", round.Payout)
	}
}

func TestWagerValidation(t *testing.T) {
	h := newHarness(t, WagerConfig{MaxStake: decimal.NewFromInt(100)})
	round, err := h.rounds.Create(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		bettor string
		stake  string
		zone   string
	}{
		{"empty bettor", "  ", "5", "GREEN"},
		{"long bettor", strings.Repeat("x", MaxBettorLength+1), "5", "GREEN"},
		{"unknown zone", "bob", "5", "PURPLE"},
		{"center not playable", "bob", "5", "CENTER"},
		{"zero stake", "bob", "0", "RED"},
		{"negative stake", "bob", "-1", "RED"},
		{"too many decimals", "bob", "1.00001", "RED"},
		{"over max stake", "bob", "100.5", "BLUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.wagers.Place(context.Background(), round.ID, PlaceWagerRequest{
				Bettor: tt.bettor,
				Stake:  decimal.RequireFromString(tt.stake),
				Zone:   tt.zone,
			})
			if !errors.Is(err, domain.ErrInvalidWager) {
				t.Errorf("err = %v, want ErrInvalidWager", err)
			}
		})
	}

	w := h.place(t, round.ID, " carol ", "0.0001", "blue")
	if w.Bettor != "carol" || w.Zone != domain.ZoneBlue || w.Status != domain.WagerStatusPending {
		t.Errorf("wager = %+v", w)
	}
}

func TestWagerPlacementRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{RateLimit: 2, RateWindow: time.Minute})

	req := PlaceWagerRequest{Bettor: "dave", Stake: decimal.NewFromInt(1), Zone: "RED"}
	if _, err := h.wagers.Place(ctx, "missing", req); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown round err = %v, want ErrNotFound", err)
	}
	if _, err := h.wagers.List(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("List unknown round err = %v, want ErrNotFound", err)
	}

	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}

	// The failed attempt above counted against dave's allowance.
	h.place(t, round.ID, "dave", "1", "RED")
	if _, err := h.wagers.Place(ctx, round.ID, req); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("third wager err = %v, want ErrRateLimited", err)
	}
	h.place(t, round.ID, "erin", "1", "RED")

	if _, err := h.rounds.CloseBetting(ctx, round.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.wagers.Place(ctx, round.ID, PlaceWagerRequest{
		Bettor: "frank", Stake: decimal.NewFromInt(1), Zone: "GREEN",
	}); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Errorf("wager after close err = %v, want ErrRoundNotOpen", err)
	}

	wagers, err := h.wagers.List(ctx, round.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(wagers) != 2 || wagers[0].Bettor != "dave" || wagers[1].Bettor != "erin" {
		t.Errorf("wagers = %+v", wagers)
	}
}

// board draws three nested rings centred on a 200x200 white canvas and, when
// marker is set, a 20px black square at its centre.
func board(marker bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	green := color.RGBA{0, 200, 0, 255}
	red := color.RGBA{220, 0, 0, 255}
	blue := color.RGBA{0, 0, 220, 255}
	white := color.RGBA{255, 255, 255, 255}
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			dx, dy := x-100, y-100
			d2 := dx*dx + dy*dy
			c := white
			switch {
			case d2 <= 30*30:
				c = green
			case d2 <= 60*60:
				c = red
			case d2 <= 90*90:
				c = blue
			}
			if marker && x >= 90 && x < 110 && y >= 90 && y < 110 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

type imageSource struct{ img image.Image }

func (s imageSource) Acquire(context.Context) (image.Image, error) { return s.img, nil }

func TestRefereeCapture(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{})
	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.place(t, round.ID, "alice", "10", "GREEN")

	if _, err := h.referee.Capture(ctx, round.ID, imageSource{board(true)}); !errors.Is(err, domain.ErrRoundNotLive) {
		t.Fatalf("capture on open round err = %v, want ErrRoundNotLive", err)
	}
	if _, err := h.rounds.CloseBetting(ctx, round.ID); err != nil {
		t.Fatal(err)
	}

	res, err := h.referee.Capture(ctx, round.ID, imageSource{board(true)})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Verdict != domain.VerdictFor(domain.ZoneGreen) {
		t.Errorf("verdict = %s, want GREEN", res.Verdict)
	}
	if res.Centroid == nil || math.Abs(res.Centroid.X-99.5) > 1e-6 || math.Abs(res.Centroid.Y-99.5) > 1e-6 {
		t.Errorf("centroid = %+v, want (99.5, 99.5)", res.Centroid)
	}
	if res.ImagePath == "" || len(h.archiver.captures) != 1 {
		t.Errorf("capture not archived: path=%q archived=%d", res.ImagePath, len(h.archiver.captures))
	}

	miss, err := h.referee.Capture(ctx, round.ID, imageSource{board(false)})
	if err != nil {
		t.Fatalf("Capture without marker: %v", err)
	}
	if miss.Verdict != domain.VerdictNoMarker || miss.Reason == "" {
		t.Errorf("verdict = %s reason = %q, want NO_MARKER with a reason", miss.Verdict, miss.Reason)
	}

	if _, err := h.referee.Capture(ctx, round.ID, capture.ReaderSource{R: strings.NewReader("not an image")}); !errors.Is(err, domain.ErrImageUnavailable) {
		t.Errorf("bad image err = %v, want ErrImageUnavailable", err)
	}

	list, err := h.referee.Captures(ctx, round.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("captures = %d, want 2", len(list))
	}

	// Captures never touch round or wager state.
	got, err := h.rounds.Results(ctx, round.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Round.Status != domain.RoundStatusLive || got.Wagers[0].Status != domain.WagerStatusPending {
		t.Errorf("state changed by capture: %+v", got)
	}
}

func TestRefereeArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{})
	h.archiver.failing = true

	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.rounds.CloseBetting(ctx, round.ID); err != nil {
		t.Fatal(err)
	}
	res, err := h.referee.Capture(ctx, round.ID, imageSource{board(true)})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.ImagePath != "" {
		t.Errorf("image path = %q, want empty", res.ImagePath)
	}
}

func TestRefereeCaptureImage(t *testing.T) {
	ctx := context.Background()
	captures := memory.NewCaptureStore()
	rounds := memory.New()
	stored := domain.Capture{ID: "c1", RoundID: "r1", ImagePath: "captures/r1/c1.png"}
	if err := captures.Save(ctx, stored); err != nil {
		t.Fatal(err)
	}
	if err := captures.Save(ctx, domain.Capture{ID: "c2", RoundID: "r1"}); err != nil {
		t.Fatal(err)
	}
	images := fakeImages{objects: map[string]string{"captures/r1/c1.png": "PNGDATA"}}
	svc := NewRefereeService(rounds, captures, vision.NewReferee(vision.DefaultConfig()), nil, images, nil, testLogger())

	rc, err := svc.CaptureImage(ctx, "r1", "c1")
	if err != nil {
		t.Fatalf("CaptureImage: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "PNGDATA" {
		t.Errorf("body = %q", body)
	}

	for _, id := range []string{"c2", "c3"} {
		if _, err := svc.CaptureImage(ctx, "r1", id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("CaptureImage(%s) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestSettlementServiceSettlesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{})
	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.place(t, round.ID, "alice", "10", "GREEN")
	h.place(t, round.ID, "bob", "5", "RED")

	if _, err := h.settle.Settle(ctx, round.ID, "GREEN"); !errors.Is(err, domain.ErrRoundNotLive) {
		t.Fatalf("settle open round err = %v, want ErrRoundNotLive", err)
	}
	if _, err := h.rounds.CloseBetting(ctx, round.ID); err != nil {
		t.Fatal(err)
	}

	res, err := h.settle.Settle(ctx, round.ID, " green ")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.AlreadySettled || res.Winners != 1 || !res.TotalPaid.Equal(decimal.NewFromInt(20)) {
		t.Errorf("result = %+v", res)
	}
	if len(h.archiver.reports) != 1 {
		t.Errorf("reports = %v, want one", h.archiver.reports)
	}

	again, err := h.settle.Settle(ctx, round.ID, "RED")
	if err != nil {
		t.Fatalf("second Settle: %v", err)
	}
	if !again.AlreadySettled || again.Round.Winner != domain.VerdictFor(domain.ZoneGreen) {
		t.Errorf("second result = %+v", again)
	}
	if again.Winners != 1 || !again.TotalPaid.Equal(decimal.NewFromInt(20)) || len(again.Wagers) != 2 {
		t.Errorf("second result totals = %+v", again)
	}

	settled := 0
	for _, e := range h.eventTypes(t) {
		if e == domain.EventRoundSettled {
			settled++
		}
	}
	if settled != 1 {
		t.Errorf("round_settled published %d times, want 1", settled)
	}

	latest, err := h.rounds.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Round.ID != round.ID || len(latest.Wagers) != 2 {
		t.Errorf("latest = %+v", latest)
	}

	entries, err := h.store.List(ctx, domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Event != domain.EventRoundSettled || entries[0].RoundID != round.ID {
		t.Errorf("latest audit entry = %+v", entries)
	}
}

func TestSettlementServiceRefusals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WagerConfig{})
	round, err := h.rounds.Create(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.rounds.CloseBetting(ctx, round.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := h.settle.Settle(ctx, round.ID, "PURPLE"); !errors.Is(err, domain.ErrInvalidVerdict) {
		t.Errorf("unknown verdict err = %v, want ErrInvalidVerdict", err)
	}
	if _, err := h.settle.Settle(ctx, round.ID, "NO_MARKER"); !errors.Is(err, domain.ErrVerdictNotSettleable) {
		t.Errorf("NO_MARKER err = %v, want ErrVerdictNotSettleable", err)
	}

	unlock, err := h.locks.Acquire(ctx, domain.SettleLockKey(round.ID), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.settle.Settle(ctx, round.ID, "NONE"); !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("locked round err = %v, want ErrLockHeld", err)
	}
	unlock()

	res, err := h.settle.Settle(ctx, round.ID, "NONE")
	if err != nil {
		t.Fatalf("Settle NONE: %v", err)
	}
	if res.Round.Winner != domain.VerdictNone || res.Round.Status != domain.RoundStatusCompleted {
		t.Errorf("round = %+v", res.Round)
	}
}
