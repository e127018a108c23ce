//go:build linux

package focus

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
)

// X11Probe polls the focused window by shelling out to xprop. The
// original's X11 backend reads the same information (XGetInputFocus plus
// _NET_WM_* property lookups) through Xlib directly; this probe needs no
// cgo Xlib binding, which this pack carries no dependency for.
type X11Probe struct {
	lookup func(args ...string) ([]byte, error)
}

// NewX11Probe returns a Probe backed by the `xprop`/`xdotool` binaries, if
// present on PATH; Update reports false (never true) when they aren't.
func NewX11Probe() *X11Probe {
	return &X11Probe{lookup: runXprop}
}

func (p *X11Probe) Name() string { return "x11" }

func (p *X11Probe) Update() (Window, bool) {
	idOut, err := exec.Command("xdotool", "getactivewindow").Output()
	if err != nil {
		return Window{}, false
	}
	id := strings.TrimSpace(string(idOut))
	if _, err := strconv.Atoi(id); err != nil {
		return Window{}, false
	}

	propOut, err := p.lookup("-id", id, "WM_CLASS", "_NET_WM_PID", "WM_NAME")
	if err != nil {
		return Window{}, false
	}

	var w Window
	for _, line := range strings.Split(string(propOut), "\n") {
		switch {
		case strings.HasPrefix(line, "WM_CLASS("):
			w.Class = lastQuoted(line)
		case strings.HasPrefix(line, "WM_NAME("):
			w.Title = lastQuoted(line)
		case strings.HasPrefix(line, "_NET_WM_PID("):
			if pid := fieldAfterEquals(line); pid != "" {
				w.Path = resolveExePath(pid)
			}
		}
	}
	return w, w.Class != "" || w.Title != ""
}

func runXprop(args ...string) ([]byte, error) {
	return exec.Command("xprop", args...).Output()
}

func lastQuoted(line string) string {
	parts := strings.Split(line, "\"")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

func fieldAfterEquals(line string) string {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

func resolveExePath(pid string) string {
	link := "/proc/" + pid + "/exe"
	out, err := exec.Command("readlink", "-f", link).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes.TrimRight(out, "\n")))
}
