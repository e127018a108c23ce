package daemonconf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keymapperd.yaml")
	if err := os.WriteFile(path, []byte("device_deny: [\"touchpad\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.SocketPath != DefaultSocketPath {
		t.Fatalf("SocketPath = %q, want default", s.SocketPath)
	}
	if s.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want \"info\"", s.LogLevel)
	}
	if len(s.DeviceDeny) != 1 || s.DeviceDeny[0] != "touchpad" {
		t.Fatalf("DeviceDeny = %v, want [touchpad]", s.DeviceDeny)
	}
}

func TestAllows(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		device   string
		want     bool
	}{
		{"empty allowlist accepts all", Settings{}, "Logitech Keyboard", true},
		{"deny wins over allow", Settings{DeviceAllow: []string{"Logitech"}, DeviceDeny: []string{"Keyboard"}}, "Logitech Keyboard", false},
		{"allowlist excludes unlisted", Settings{DeviceAllow: []string{"Logitech"}}, "Generic Mouse", false},
		{"allowlist includes listed", Settings{DeviceAllow: []string{"Logitech"}}, "Logitech Keyboard", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.Allows(tt.device, ""); got != tt.want {
				t.Fatalf("Allows(%q) = %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}
