package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/melcloud"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWritePostsToFamilyEndpoint(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-MitsContextKey")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ContextKey: "secret"}, newTestLogger())
	err := c.Write(context.Background(), command.Request{
		DeviceID: "123",
		Family:   melcloud.FamilyHeatPump,
		Payload:  command.Payload{"Power": true},
		Flags:    melcloud.FlagAtwPower,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/Device/SetAtw" {
		t.Errorf("path = %q, want /Device/SetAtw", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("context key = %q", gotKey)
	}
	if gotBody["DeviceID"] != 123.0 {
		t.Errorf("DeviceID = %v, want numeric 123", gotBody["DeviceID"])
	}
	if gotBody["EffectiveFlags"] != 1.0 || gotBody["HasPendingCommand"] != true || gotBody["Power"] != true {
		t.Errorf("body = %v", gotBody)
	}
}

func TestWriteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, newTestLogger())
	err := c.Write(context.Background(), command.Request{DeviceID: "1", Family: melcloud.FamilyAirConditioner})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestWriteUnknownFamily(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, newTestLogger())
	if err := c.Write(context.Background(), command.Request{DeviceID: "1", Family: 2}); err == nil {
		t.Error("expected error for family without endpoint")
	}
}
