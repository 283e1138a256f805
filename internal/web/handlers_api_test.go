package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"melcloud-bridge/internal/command"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/normalize"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubDevices struct {
	mu        sync.Mutex
	views     []engine.View
	raw       map[string]melcloud.RawSnapshot
	applied   []command.Intent
	applyErr  error
	refreshed []string
}

func (s *stubDevices) Devices() []engine.View { return s.views }

func (s *stubDevices) Device(id string) (engine.View, bool) {
	for _, v := range s.views {
		if v.ID == id {
			return v, true
		}
	}
	return engine.View{}, false
}

func (s *stubDevices) Raw(id string) (melcloud.RawSnapshot, bool) {
	snap, ok := s.raw[id]
	return snap, ok
}

func (s *stubDevices) Apply(_ context.Context, id string, in command.Intent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return "", s.applyErr
	}
	s.applied = append(s.applied, in)
	return fmt.Sprintf("req-%d", len(s.applied)), nil
}

func (s *stubDevices) Refresh(id string) bool {
	if _, ok := s.Device(id); !ok {
		return false
	}
	s.refreshed = append(s.refreshed, id)
	return true
}

func temp(v float64) *float64 { return &v }

func seededDevices() *stubDevices {
	return &stubDevices{
		views: []engine.View{
			{
				ID:     "12345",
				Name:   "Living Room",
				Family: melcloud.FamilyAirConditioner,
				State: &normalize.State{
					DeviceID:          "12345",
					Name:              "Living Room",
					Family:            melcloud.FamilyAirConditioner,
					Power:             true,
					TargetTemperature: temp(21),
				},
			},
			{ID: "77", Name: "Ecodan", Family: melcloud.FamilyHeatPump},
		},
		raw: map[string]melcloud.RawSnapshot{
			"12345": {
				DeviceID:   "12345",
				DeviceName: "Living Room",
				BuildingID: 1,
				Type:       melcloud.FamilyAirConditioner,
				Device:     melcloud.Block{"Power": true, "SetTemperature": 21.0},
			},
		},
	}
}

func setupTestServer(t *testing.T, devices Devices, opts ...ServerOption) (*Server, *events.Bus) {
	t.Helper()
	bus := events.NewBus(newTestLogger())
	srv := NewServer(devices, bus, newTestLogger(), opts...)
	t.Cleanup(srv.Stop)
	return srv, bus
}

func doRequest(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestAPIListDevices(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices())

	w := doRequest(srv, "GET", "/api/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var views []engine.View
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("device count = %d, want 2", len(views))
	}
	if views[0].State == nil || *views[0].State.TargetTemperature != 21 {
		t.Errorf("first device state = %+v", views[0].State)
	}
	if views[1].State != nil {
		t.Errorf("unsynced device should have no state, got %+v", views[1].State)
	}
}

func TestAPIGetDevice(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices())

	w := doRequest(srv, "GET", "/api/devices/12345", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var v engine.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.ID != "12345" || v.Name != "Living Room" {
		t.Errorf("view = %+v", v)
	}

	if w := doRequest(srv, "GET", "/api/devices/99999", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIRawDevice(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices())

	w := doRequest(srv, "GET", "/api/devices/12345/raw", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp rawResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.State["SetTemperature"] != 21.0 {
		t.Errorf("raw state = %v", resp.State)
	}
	if resp.Info["DeviceName"] != "Living Room" {
		t.Errorf("raw info = %v", resp.Info)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/devices/77/raw", http.StatusNotFound},
		{"/api/devices/99999/raw", http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := doRequest(srv, "GET", tt.path, ""); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestAPICommand(t *testing.T) {
	devices := seededDevices()
	srv, _ := setupTestServer(t, devices)

	body := `[{"field":"Power","value":"ON"},{"field":"TargetTemperature","value":22.5}]`
	w := doRequest(srv, "POST", "/api/devices/12345/command", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var results []commandResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[1].RequestID != "req-2" {
		t.Errorf("results = %+v", results)
	}
	if len(devices.applied) != 2 || devices.applied[1].Value != 22.5 {
		t.Errorf("applied = %v", devices.applied)
	}
}

func TestAPICommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		applyErr error
		want     int
	}{
		{"unknown device", "/api/devices/99999/command", `{"field":"Power","value":1}`, nil, http.StatusNotFound},
		{"bad json", "/api/devices/12345/command", `{`, nil, http.StatusBadRequest},
		{"unknown field", "/api/devices/12345/command", `{"field":"Turbo","value":1}`, nil, http.StatusBadRequest},
		{"validation", "/api/devices/12345/command", `{"field":"Swing","value":1}`,
			&command.ValidationError{Intent: command.Intent{Field: command.FieldSwing, Value: 1}, Err: command.ErrUnsupported}, http.StatusBadRequest},
		{"engine lost device", "/api/devices/12345/command", `{"field":"Power","value":1}`,
			fmt.Errorf("apply 12345: %w", engine.ErrUnknownDevice), http.StatusNotFound},
		{"write failure", "/api/devices/12345/command", `{"field":"Power","value":1}`,
			errors.New("write 12345: status 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices := seededDevices()
			devices.applyErr = tt.applyErr
			srv, _ := setupTestServer(t, devices)

			w := doRequest(srv, "POST", tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAPIRefresh(t *testing.T) {
	devices := seededDevices()
	srv, _ := setupTestServer(t, devices)

	if w := doRequest(srv, "POST", "/api/devices/12345/refresh", ""); w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := doRequest(srv, "POST", "/api/devices/99999/refresh", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(devices.refreshed) != 1 {
		t.Errorf("refreshed = %v", devices.refreshed)
	}
}

func TestAPIVersion(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices(), WithVersion("1.2.3"))

	w := doRequest(srv, "GET", "/api/version", "")
	if !strings.Contains(w.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices())
	if w := doRequest(srv, "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("without metrics: status = %d, want %d", w.Code, http.StatusNotFound)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("melcloud_warnings_total 0\n"))
	})
	srv, _ = setupTestServer(t, seededDevices(), WithMetrics(h), WithAPIKey("secret-key"))
	w := doRequest(srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "melcloud_warnings_total") {
		t.Errorf("metrics: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices(), WithAPIKey("secret-key"))

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"correct key", "secret-key", http.StatusOK},
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "wrong-key", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/devices", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t, seededDevices(), WithAllowedOrigins([]string{"http://ha.local"}))

	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"preflight allowed", http.MethodOptions, "http://ha.local", http.StatusNoContent},
		{"preflight denied", http.MethodOptions, "http://evil.example", http.StatusForbidden},
		{"post denied", http.MethodPost, "http://evil.example", http.StatusForbidden},
		{"get from anywhere", http.MethodGet, "http://evil.example", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/devices"
			if tt.method == http.MethodPost {
				path = "/api/devices/12345/refresh"
			}
			req := httptest.NewRequest(tt.method, path, nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
