package snapshot

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFlatArray(t *testing.T) {
	path := writeFile(t, `[
		{"DeviceID": 100, "DeviceName": "Living", "Type": 0, "Device": {"Power": true}},
		{"DeviceID": "abc", "DeviceName": "Heat pump", "Type": 1, "Device": {"Power": false}}
	]`)
	src := NewFileSource(path, newTestLogger())

	snap, st := src.Read("100")
	if st != Found {
		t.Fatalf("status = %s, want found", st)
	}
	if snap.DeviceName != "Living" || !snap.Device.BoolOr("Power", false) {
		t.Errorf("snap = %+v", snap)
	}

	snap, st = src.Read("abc")
	if st != Found || snap.Type != 1 {
		t.Errorf("abc = %+v, %s", snap, st)
	}
}

func TestReadBuildingList(t *testing.T) {
	path := writeFile(t, `[{"Structure": {
		"Devices": [{"DeviceID": 1, "Type": 0, "Device": {}}],
		"Areas":   [{"Devices": [{"DeviceID": 2, "Type": 0, "Device": {}}]}],
		"Floors":  [{"Devices": [{"DeviceID": 3, "Type": 3, "Device": {}}],
		             "Areas": [{"Devices": [{"DeviceID": 1, "Type": 0, "Device": {}}, {"DeviceID": 4, "Type": 1, "Device": {}}]}]}]
	}}]`)
	src := NewFileSource(path, newTestLogger())

	all, st := src.List()
	if st != Found {
		t.Fatalf("status = %s", st)
	}
	if len(all) != 4 {
		t.Errorf("devices = %d, want 4 (duplicate dropped)", len(all))
	}
	if _, st := src.Read("4"); st != Found {
		t.Errorf("device 4 status = %s", st)
	}
}

func TestReadOutcomes(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want Status
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.json") }, NoStore},
		{"corrupt", func(t *testing.T) string { return writeFile(t, `{not json`) }, Corrupt},
		{"truncated", func(t *testing.T) string { return writeFile(t, `[{"DeviceID": 1, "Dev`) }, Corrupt},
		{"unknown device", func(t *testing.T) string { return writeFile(t, `[{"DeviceID": 1, "Type": 0}]`) }, UnknownDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, st := NewFileSource(tt.path(t), newTestLogger()).Read("999")
			if st != tt.want {
				t.Errorf("status = %s, want %s", st, tt.want)
			}
		})
	}
}
