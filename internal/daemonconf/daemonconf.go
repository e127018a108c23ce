// Package daemonconf loads the daemon's own small settings file — socket
// path, device allowlist, log level — kept as a separate YAML document
// from the keymap DSL ParseConfig reads, the same split gazed-vu draws
// between its engine-internal shader/model formats and its YAML asset
// manifests (load/shd.go).
package daemonconf

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the daemon-local configuration: nothing here describes a
// mapping rule (that's ParseConfig's job), only how the daemon process
// itself should run.
type Settings struct {
	// SocketPath is the IPC socket the daemon listens on and the client
	// connects to.
	SocketPath string `yaml:"socket_path"`

	// DeviceAllow lists device name/id substrings to grab; empty means
	// every device DeviceDeny does not exclude is grabbed.
	DeviceAllow []string `yaml:"device_allow"`

	// DeviceDeny excludes devices even if DeviceAllow would otherwise
	// grab them.
	DeviceDeny []string `yaml:"device_deny"`

	// LogLevel is one of "error", "info", "debug"; empty defaults to
	// "info".
	LogLevel string `yaml:"log_level"`

	// ExitSequence is the daemon's own copy of the "exit_sequence = ..."
	// directive (§SPEC_FULL D.4): a literal key-chord surface expression
	// that force-quits the daemon once matched in full. It lives here
	// rather than traveling over the wire protocol because spec §6 pins
	// the configuration frame's layout exactly for compatibility; this
	// keeps that frame untouched.
	ExitSequence string `yaml:"exit_sequence"`
}

// DefaultSocketPath is used when Settings.SocketPath is empty.
const DefaultSocketPath = "/run/keymapperd.sock"

// Default returns the zero-configuration Settings a freshly installed
// daemon runs with.
func Default() Settings {
	return Settings{SocketPath: DefaultSocketPath, LogLevel: "info"}
}

// Load reads and parses a daemon settings file, filling unset fields from
// Default.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	if s.SocketPath == "" {
		s.SocketPath = DefaultSocketPath
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	return s, nil
}

// Allows reports whether a device named name (optionally also known by
// by-id symlink id) should be grabbed under this policy: DeviceDeny always
// wins; an empty DeviceAllow accepts everything not denied.
func (s Settings) Allows(name, id string) bool {
	for _, d := range s.DeviceDeny {
		if d != "" && (contains(name, d) || contains(id, d)) {
			return false
		}
	}
	if len(s.DeviceAllow) == 0 {
		return true
	}
	for _, a := range s.DeviceAllow {
		if contains(name, a) || contains(id, a) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
