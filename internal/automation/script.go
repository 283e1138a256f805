//go:build !no_automation

package automation

// ScriptMeta holds user-editable metadata for a script. It is stored as a
// JSON comment on the first line of the file.
type ScriptMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Devices     []string `json:"devices,omitempty"` // empty = events from every device
}

// Script represents a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"` // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// Watches reports whether events from device reach the script. An empty
// device matches every script.
func (s *Script) Watches(device string) bool {
	if len(s.Meta.Devices) == 0 || device == "" {
		return true
	}
	for _, d := range s.Meta.Devices {
		if d == device {
			return true
		}
	}
	return false
}
