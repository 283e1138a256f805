// Package snapshot reads device records from the file the account discovery
// process maintains. This package never writes that file.
package snapshot

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"melcloud-bridge/internal/melcloud"
)

// Status is the outcome of a read. Only Found carries a snapshot; the others
// mean "no data yet" and are not errors.
type Status int

const (
	Found Status = iota
	NoStore
	Corrupt
	UnknownDevice
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NoStore:
		return "no_store"
	case Corrupt:
		return "corrupt"
	case UnknownDevice:
		return "unknown_device"
	}
	return "unknown"
}

// FileSource reads the discovery file on every call. Reads are not
// synchronized with the writer; a stale or half-written file shows up as an
// old snapshot or Corrupt and the next tick converges.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a source for the given discovery file.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: path, logger: logger.With("component", "snapshot")}
}

// Read returns the record for one device.
func (s *FileSource) Read(deviceID string) (melcloud.RawSnapshot, Status) {
	all, st := s.List()
	if st != Found {
		return melcloud.RawSnapshot{}, st
	}
	for _, rec := range all {
		if rec.DeviceID == deviceID {
			return rec, Found
		}
	}
	return melcloud.RawSnapshot{}, UnknownDevice
}

// List returns every record in the file.
func (s *FileSource) List() ([]melcloud.RawSnapshot, Status) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NoStore
	}
	if err != nil {
		s.logger.Debug("read discovery file", "path", s.path, "err", err)
		return nil, NoStore
	}
	recs, err := Decode(data)
	if err != nil {
		s.logger.Debug("decode discovery file", "path", s.path, "err", err)
		return nil, Corrupt
	}
	return recs, Found
}

// Decode parses a discovery document. It accepts a flat array of device
// records or the building list returned by User/ListDevices, whose devices
// sit under Structure, its Floors and their Areas. Duplicates are dropped.
func Decode(data []byte) ([]melcloud.RawSnapshot, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	var out []melcloud.RawSnapshot
	seen := make(map[string]struct{})
	add := func(recs ...melcloud.RawSnapshot) {
		for _, r := range recs {
			if _, ok := seen[r.DeviceID]; ok {
				continue
			}
			seen[r.DeviceID] = struct{}{}
			out = append(out, r)
		}
	}

	for _, raw := range items {
		var probe struct {
			Structure *structure `json:"Structure"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, err
		}
		if probe.Structure != nil {
			add(probe.Structure.devices()...)
			continue
		}
		var rec melcloud.RawSnapshot
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		add(rec)
	}
	return out, nil
}

type structure struct {
	Devices []melcloud.RawSnapshot `json:"Devices"`
	Areas   []area                 `json:"Areas"`
	Floors  []floor                `json:"Floors"`
}

type area struct {
	Devices []melcloud.RawSnapshot `json:"Devices"`
}

type floor struct {
	Devices []melcloud.RawSnapshot `json:"Devices"`
	Areas   []area                 `json:"Areas"`
}

func (s *structure) devices() []melcloud.RawSnapshot {
	out := append([]melcloud.RawSnapshot(nil), s.Devices...)
	for _, a := range s.Areas {
		out = append(out, a.Devices...)
	}
	for _, f := range s.Floors {
		out = append(out, f.Devices...)
		for _, a := range f.Areas {
			out = append(out, a.Devices...)
		}
	}
	return out
}
