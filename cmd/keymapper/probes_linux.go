//go:build linux

package main

import "github.com/kbd/keymapper/internal/focus"

// platformProbes returns the focused-window backends to try, in priority
// order, on this host.
func platformProbes() []focus.Probe {
	return []focus.Probe{focus.NewX11Probe()}
}
