// Package focus implements the host-side "focused-window probe" the core
// spec describes only abstractly (§6, design notes): a capability that
// reports the currently focused window's class, title and executable
// path, with one backend per windowing system, registered in priority
// order and tried in turn until one succeeds — the same pattern the
// teacher uses for its per-platform screen drivers (tcell's driver.go
// registry of NewTerminfoScreen/NewConsoleScreen), generalized from
// build-tag dispatch to a runtime-tried list because a single Linux
// binary may need to probe X11 first and fall back to a Wayland
// compositor's own IPC.
package focus

import "fmt"

// Window describes the window the host should derive context filters
// (class/title/path, spec §3) from.
type Window struct {
	Class string
	Title string
	Path  string
}

// Probe is one windowing-system backend's view of the focused window.
type Probe interface {
	// Name identifies the backend for diagnostics.
	Name() string

	// Update refreshes the backend's idea of the focused window. It
	// returns false when this backend cannot answer right now (wrong
	// session type, compositor doesn't expose it, not connected) so the
	// registry can fall through to the next one.
	Update() (Window, bool)
}

// Registry tries each registered Probe in order and remembers which one
// last succeeded, preferring it on the next call (a window manager
// doesn't usually change session type mid-run).
type Registry struct {
	probes []Probe
	active int
}

// NewRegistry builds a Registry over probes, tried in the given order.
func NewRegistry(probes ...Probe) *Registry {
	return &Registry{probes: probes, active: -1}
}

// Update returns the focused window from whichever probe answers first,
// starting with the last one that succeeded.
func (r *Registry) Update() (Window, bool) {
	if r.active >= 0 && r.active < len(r.probes) {
		if w, ok := r.probes[r.active].Update(); ok {
			return w, true
		}
	}
	for i, p := range r.probes {
		if w, ok := p.Update(); ok {
			r.active = i
			return w, true
		}
	}
	r.active = -1
	return Window{}, false
}

// ActiveBackend names the probe currently answering, or "" if none has.
func (r *Registry) ActiveBackend() string {
	if r.active < 0 || r.active >= len(r.probes) {
		return ""
	}
	return r.probes[r.active].Name()
}

// staticProbe is a trivial Probe with a fixed answer, used by tests.
type staticProbe struct {
	name   string
	window Window
	ok     bool
}

// NewStaticProbe returns a Probe that always reports the given window (or
// always fails, if ok is false). The tests use it; the "--check" CLI path
// queries no probe at all.
func NewStaticProbe(name string, window Window, ok bool) Probe {
	return &staticProbe{name: name, window: window, ok: ok}
}

func (p *staticProbe) Name() string { return p.name }

func (p *staticProbe) Update() (Window, bool) {
	return p.window, p.ok
}

func (w Window) String() string {
	return fmt.Sprintf("{class=%q title=%q path=%q}", w.Class, w.Title, w.Path)
}
