package notify

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

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"round_settled"}, discard())

	_ = n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventWagerPlaced, RoundID: "r1"})
	_ = n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventRoundSettled, RoundID: "r1"})

	if len(s.titles) != 1 || s.titles[0] != "Round r1 settled" {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if len(good.titles) != 1 {
		t.Fatalf("second sender skipped after first failed")
	}
}

func TestFormatEventSortsPayload(t *testing.T) {
	title, msg := FormatEvent(domain.Event{
		Type:    domain.EventRoundSettled,
		RoundID: "r9",
		Payload: map[string]any{"winner": "RED", "paid": "20"},
	})
	if title != "Round r9 settled" {
		t.Fatalf("title = %q", title)
	}
	if msg != "paid: 20\nwinner: RED" {
		t.Fatalf("message = %q", msg)
	}
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "title", "body"); err != nil {
		t.Fatal(err)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Title != "title" || got.Embeds[0].Description != "body" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL + "/")
	if err := s.Send(context.Background(), "Round r1 settled", "winner: RED"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if body["chat_id"] != "42" || !strings.HasPrefix(body["text"], "*Round r1 settled*") {
		t.Fatalf("body = %v", body)
	}
}
